package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var projectSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

// ApplyItemDefaults fills unset axes with their initial values.
func ApplyItemDefaults(w WorkItem) WorkItem {
	if w.Progress == "" {
		w.Progress = ProgressEmpty
	}
	if w.Priority == "" {
		w.Priority = PriorityMed
	}
	if w.Status == "" {
		w.Status = StatusNew
	}
	if w.Type == "" {
		w.Type = TypeDraft
	}
	if w.Category == "" {
		w.Category = CategoryFeatures
	}
	return w
}

// ValidateItem checks required references, axis values and dates.
func ValidateItem(w WorkItem) error {
	if strings.TrimSpace(w.Title) == "" {
		return ValidationError{Field: "title", Reason: "required"}
	}
	if strings.TrimSpace(w.ProjectSlug) == "" {
		return ValidationError{Field: "project_slug", Reason: "required"}
	}
	if w.SprintNumber < 0 {
		return ValidationError{Field: "sprint_number", Reason: "must be >= 0"}
	}
	if !Progresses.Valid(w.Progress) {
		return ValidationError{Field: "progress", Reason: fmt.Sprintf("unknown value %q", w.Progress)}
	}
	if !Priorities.Valid(w.Priority) {
		return ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", w.Priority)}
	}
	if !Statuses.Valid(w.Status) {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", w.Status)}
	}
	if !ItemTypes.Valid(w.Type) {
		return ValidationError{Field: "type", Reason: fmt.Sprintf("unknown value %q", w.Type)}
	}
	if !Categories.Valid(w.Category) {
		return ValidationError{Field: "category", Reason: fmt.Sprintf("unknown value %q", w.Category)}
	}
	return validateDates([2]string{"beg_date", w.BegDate}, [2]string{"end_date", w.EndDate}, [2]string{"due_date", w.DueDate})
}

// validateDates checks field/value pairs in order and reports the first
// bad one.
func validateDates(dates ...[2]string) error {
	for _, d := range dates {
		if d[1] == "" {
			continue
		}
		if _, err := ParseDate(d[0], d[1]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProject checks the project slug and name.
func ValidateProject(p Project) error {
	if !projectSlugPattern.MatchString(p.Slug) {
		return ValidationError{Field: "slug", Reason: "lowercase letters, digits and underscores only"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return ValidationError{Field: "name", Reason: "required"}
	}
	if p.SprintWeeks < 0 {
		return ValidationError{Field: "sprint_weeks", Reason: "must be >= 0"}
	}
	return validateDates([2]string{"start_date", p.StartDate}, [2]string{"end_date", p.EndDate})
}
