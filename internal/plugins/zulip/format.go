package zulip

import (
	"fmt"
	"time"

	"sprintsync/internal/domain"
)

// BacklogTopic holds one message per backlog item.
const BacklogTopic = "📑 [BACKLOG] "

// StreamName is the chat stream a project's items are posted to.
func StreamName(projectName string, pinned bool) string {
	if pinned {
		return "📌PRJ/" + projectName
	}
	return "PRJ/" + projectName
}

// BacklogContent is the single-line message for a backlog item.
func BacklogContent(v domain.ItemView) string {
	w := v.Item
	return fmt.Sprintf("%s %s %s **[%s]** %s  **:time::%s** @**%s** %s",
		domain.Statuses.Glyph(w.Status),
		domain.Priorities.Glyph(w.Priority),
		domain.Progresses.Glyph(w.Progress),
		w.Slug,
		w.Title,
		dueLabel(w.DueDate),
		v.AssigneeName,
		domain.Categories.Glyph(w.Category),
	)
}

// TaskTopic names the topic a task lives in. It changes with the item's
// state, so every update moves the whole topic.
func TaskTopic(v domain.ItemView) string {
	w := v.Item
	return fmt.Sprintf("%s %s %s  %s %s",
		domain.Progresses.Glyph(w.Progress),
		w.Title,
		domain.Categories.Glyph(w.Category),
		domain.Priorities.Glyph(w.Priority),
		domain.Statuses.Glyph(w.Status),
	)
}

// TaskContent is the opening message of a task topic.
func TaskContent(v domain.ItemView) string {
	w := v.Item
	return fmt.Sprintf("[%s] **:time::%s** @**%s**\n%s", w.Slug, dueLabel(w.DueDate), v.AssigneeName, w.Description)
}

// dueLabel renders a stored YYYY-MM-DD date as DD-MM-YYYY.
func dueLabel(date string) string {
	if date == "" {
		return ""
	}
	t, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02-01-2006")
}
