package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/domain"
)

func TestStepHoldsAtEnds(t *testing.T) {
	got, err := domain.Progresses.Step(domain.ProgressEmpty, -1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressEmpty, got)

	got, err = domain.Progresses.Step(domain.ProgressReady, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressReady, got)

	gotP, err := domain.Priorities.Step(domain.PriorityLow, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHi, gotP)
}

func TestStepMovesInside(t *testing.T) {
	got, err := domain.Statuses.Step(domain.StatusNew, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCheckedIn, got)

	got, err = domain.Statuses.Step(got, -1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarted, got)
}

func TestCircleWraps(t *testing.T) {
	got, err := domain.Progresses.Circle(domain.ProgressReady, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressEmpty, got)

	got, err = domain.Progresses.Circle(domain.ProgressEmpty, -1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressReady, got)

	gotS, err := domain.Statuses.Circle(domain.StatusNew, -6)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, gotS)
}

func TestCircleNeedsAxisLengthStepsToReturn(t *testing.T) {
	cur := domain.ProgressEmpty
	var err error
	for i := 1; i <= domain.Progresses.Len(); i++ {
		cur, err = domain.Progresses.Circle(cur, 1)
		require.NoError(t, err)
		if i < domain.Progresses.Len() {
			assert.NotEqual(t, domain.ProgressEmpty, cur, "step %d", i)
		}
	}
	assert.Equal(t, domain.ProgressEmpty, cur)
	assert.Equal(t, 4, domain.Progresses.Len())
}

func TestStepRejectsUnknownValue(t *testing.T) {
	_, err := domain.Priorities.Step(domain.Priority("urgent"), 1)
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priority", verr.Field)
}

func TestParseAcceptsNameAndGlyph(t *testing.T) {
	v, err := domain.Statuses.Parse("Checked_In")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCheckedIn, v)

	c, err := domain.Categories.Parse("🐞")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryBugs, c)

	_, err = domain.ItemTypes.Parse("epic")
	assert.Error(t, err)
}

func TestMoveAxis(t *testing.T) {
	item := domain.ApplyItemDefaults(domain.WorkItem{Title: "x", ProjectSlug: "core"})

	tests := []struct {
		name   string
		axis   domain.AxisName
		delta  int
		circle bool
		check  func(t *testing.T, w domain.WorkItem)
	}{
		{"priority up", domain.AxisPriority, 1, false, func(t *testing.T, w domain.WorkItem) {
			assert.Equal(t, domain.PriorityHi, w.Priority)
		}},
		{"priority circle", domain.AxisPriority, 2, true, func(t *testing.T, w domain.WorkItem) {
			assert.Equal(t, domain.PriorityLow, w.Priority)
		}},
		{"type circle", domain.AxisType, 1, true, func(t *testing.T, w domain.WorkItem) {
			assert.Equal(t, domain.TypeSelf, w.Type)
		}},
		{"status down", domain.AxisStatus, -1, false, func(t *testing.T, w domain.WorkItem) {
			assert.Equal(t, domain.StatusNew, w.Status)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.MoveAxis(item, tt.axis, tt.delta, tt.circle)
			require.NoError(t, err)
			tt.check(t, got)
		})
	}

	_, err := domain.MoveAxis(item, domain.AxisName("category"), 1, false)
	assert.Error(t, err)
}
