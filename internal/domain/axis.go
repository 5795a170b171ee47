package domain

import (
	"fmt"
	"strings"
)

type (
	Progress string
	Priority string
	Status   string
	ItemType string
	Category string
)

const (
	ProgressEmpty      Progress = "empty"
	ProgressInProgress Progress = "in_progress"
	ProgressHalfWay    Progress = "half_way"
	ProgressReady      Progress = "ready"

	PriorityLow Priority = "low"
	PriorityMed Priority = "med"
	PriorityHi  Priority = "hi"

	StatusNew       Status = "new"
	StatusStarted   Status = "started"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"

	TypeBacklog ItemType = "backlog"
	TypeTask    ItemType = "task"
	TypeDraft   ItemType = "draft"
	TypeSelf    ItemType = "self"
)

const (
	CategoryIdeas       Category = "ideas"
	CategoryIssues      Category = "issues"
	CategoryMaintenance Category = "maintenance"
	CategoryFinances    Category = "finances"
	CategoryInnovation  Category = "innovation"
	CategoryBugs        Category = "bugs"
	CategoryFeatures    Category = "features"
	CategorySecurity    Category = "security"
	CategoryAttention   Category = "attention"
	CategoryBackend     Category = "backend"
	CategoryDatabase    Category = "database"
	CategoryDesktop     Category = "desktop"
	CategoryMobile      Category = "mobile"
	CategoryIntl        Category = "intl"
	CategoryDesign      Category = "design"
	CategoryAnalytics   Category = "analytics"
	CategoryAutomation  Category = "automation"
)

// Axis is a finite ordered set of named values with a display glyph each.
// Step clamps at the ends; Circle wraps.
type Axis[T ~string] struct {
	name   string
	values []T
	glyphs map[T]string
}

type axisValue[T ~string] struct {
	value T
	glyph string
}

func newAxis[T ~string](name string, vals ...axisValue[T]) Axis[T] {
	a := Axis[T]{name: name, glyphs: make(map[T]string, len(vals))}
	for _, v := range vals {
		a.values = append(a.values, v.value)
		a.glyphs[v.value] = v.glyph
	}
	return a
}

var (
	Progresses = newAxis("progress",
		axisValue[Progress]{ProgressEmpty, "⬜⬜⬜"},
		axisValue[Progress]{ProgressInProgress, "🟩⬜⬜"},
		axisValue[Progress]{ProgressHalfWay, "🟩🟩⬜"},
		axisValue[Progress]{ProgressReady, "🟩🟩🟩"},
	)
	Priorities = newAxis("priority",
		axisValue[Priority]{PriorityLow, "🟢"},
		axisValue[Priority]{PriorityMed, "🟡"},
		axisValue[Priority]{PriorityHi, "🔴"},
	)
	Statuses = newAxis("status",
		axisValue[Status]{StatusNew, "☀️"},
		axisValue[Status]{StatusStarted, "🛠️"},
		axisValue[Status]{StatusCheckedIn, "🔳"},
		axisValue[Status]{StatusCompleted, "✅"},
		axisValue[Status]{StatusCancelled, "🚫"},
	)
	ItemTypes = newAxis("type",
		axisValue[ItemType]{TypeBacklog, "backlog"},
		axisValue[ItemType]{TypeTask, "task"},
		axisValue[ItemType]{TypeDraft, "draft"},
		axisValue[ItemType]{TypeSelf, "self"},
	)
	Categories = newAxis("category",
		axisValue[Category]{CategoryIdeas, "💡"},
		axisValue[Category]{CategoryIssues, "⚠️"},
		axisValue[Category]{CategoryMaintenance, "🔨"},
		axisValue[Category]{CategoryFinances, "💰"},
		axisValue[Category]{CategoryInnovation, "🚀"},
		axisValue[Category]{CategoryBugs, "🐞"},
		axisValue[Category]{CategoryFeatures, "🎁"},
		axisValue[Category]{CategorySecurity, "🔒"},
		axisValue[Category]{CategoryAttention, "🚩"},
		axisValue[Category]{CategoryBackend, "📡"},
		axisValue[Category]{CategoryDatabase, "💾"},
		axisValue[Category]{CategoryDesktop, "🖥️"},
		axisValue[Category]{CategoryMobile, "📱"},
		axisValue[Category]{CategoryIntl, "🌍"},
		axisValue[Category]{CategoryDesign, "🎨"},
		axisValue[Category]{CategoryAnalytics, "📈"},
		axisValue[Category]{CategoryAutomation, "🤖"},
	)
)

func (a Axis[T]) Name() string { return a.name }

func (a Axis[T]) Len() int { return len(a.values) }

// Values returns the axis values in order.
func (a Axis[T]) Values() []T {
	return append([]T(nil), a.values...)
}

func (a Axis[T]) First() T { return a.values[0] }

func (a Axis[T]) Last() T { return a.values[len(a.values)-1] }

// Index returns the position of v, or -1 when v is not on the axis.
func (a Axis[T]) Index(v T) int {
	for i, x := range a.values {
		if x == v {
			return i
		}
	}
	return -1
}

func (a Axis[T]) Valid(v T) bool { return a.Index(v) >= 0 }

// Glyph returns the display glyph for v, or v itself when unknown.
func (a Axis[T]) Glyph(v T) string {
	if g, ok := a.glyphs[v]; ok {
		return g
	}
	return string(v)
}

// Parse accepts a value name (case-insensitive) or its glyph.
func (a Axis[T]) Parse(s string) (T, error) {
	key := strings.TrimSpace(s)
	for _, v := range a.values {
		if strings.EqualFold(string(v), key) || a.glyphs[v] == key {
			return v, nil
		}
	}
	var zero T
	return zero, ValidationError{Field: a.name, Reason: fmt.Sprintf("unknown value %q", s)}
}

// Step moves delta positions from cur and holds at either end.
func (a Axis[T]) Step(cur T, delta int) (T, error) {
	idx := a.Index(cur)
	if idx < 0 {
		return cur, ValidationError{Field: a.name, Reason: fmt.Sprintf("unknown value %q", cur)}
	}
	next := idx + delta
	if next < 0 {
		next = 0
	}
	if next > len(a.values)-1 {
		next = len(a.values) - 1
	}
	return a.values[next], nil
}

// Circle moves delta positions from cur, wrapping past either end.
func (a Axis[T]) Circle(cur T, delta int) (T, error) {
	idx := a.Index(cur)
	if idx < 0 {
		return cur, ValidationError{Field: a.name, Reason: fmt.Sprintf("unknown value %q", cur)}
	}
	n := len(a.values)
	next := ((idx+delta)%n + n) % n
	return a.values[next], nil
}

// AxisName identifies one of the steppable item attributes.
type AxisName string

const (
	AxisProgress AxisName = "progress"
	AxisPriority AxisName = "priority"
	AxisStatus   AxisName = "status"
	AxisType     AxisName = "type"
)

func ParseAxisName(s string) (AxisName, error) {
	switch AxisName(strings.ToLower(strings.TrimSpace(s))) {
	case AxisProgress:
		return AxisProgress, nil
	case AxisPriority:
		return AxisPriority, nil
	case AxisStatus:
		return AxisStatus, nil
	case AxisType:
		return AxisType, nil
	}
	return "", ValidationError{Field: "axis", Reason: fmt.Sprintf("unknown axis %q", s)}
}

// MoveAxis applies a bounded step (circular when circle is set) to the named
// axis of item and returns the updated copy.
func MoveAxis(item WorkItem, axis AxisName, delta int, circle bool) (WorkItem, error) {
	var err error
	switch axis {
	case AxisProgress:
		item.Progress, err = move(Progresses, item.Progress, delta, circle)
	case AxisPriority:
		item.Priority, err = move(Priorities, item.Priority, delta, circle)
	case AxisStatus:
		item.Status, err = move(Statuses, item.Status, delta, circle)
	case AxisType:
		item.Type, err = move(ItemTypes, item.Type, delta, circle)
	default:
		err = ValidationError{Field: "axis", Reason: fmt.Sprintf("unknown axis %q", axis)}
	}
	return item, err
}

func move[T ~string](a Axis[T], cur T, delta int, circle bool) (T, error) {
	if circle {
		return a.Circle(cur, delta)
	}
	return a.Step(cur, delta)
}
