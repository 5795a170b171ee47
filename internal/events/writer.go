// Package events keeps the append-only change log. Rows are written in the
// same transaction as the change they describe.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sprintsync/internal/domain"
)

const (
	ItemCreated    = "item.created"
	ItemUpdated    = "item.updated"
	ItemDeleted    = "item.deleted"
	ProjectCreated = "project.created"
	ProjectUpdated = "project.updated"
	ProjectDeleted = "project.deleted"
)

// Entity kinds stored in events.entity_kind.
const (
	KindItem    = "item"
	KindProject = "project"
)

// ItemPayload is stored for every item event. Fields lists the changed
// columns of an update.
type ItemPayload struct {
	Slug   string          `json:"slug"`
	Title  string          `json:"title,omitempty"`
	Type   domain.ItemType `json:"type,omitempty"`
	Sprint int             `json:"sprint"`
	Fields []string        `json:"fields,omitempty"`
}

type ProjectPayload struct {
	Name string `json:"name"`
	Pin  bool   `json:"pin"`
}

type Writer struct {
	Now func() time.Time
}

// Item logs evtType for w. fields is only meaningful for updates.
func (wr Writer) Item(ctx context.Context, tx *sql.Tx, evtType string, w domain.WorkItem, actorID string, fields ...string) error {
	payload := ItemPayload{Slug: w.Slug, Title: w.Title, Type: w.Type, Sprint: w.SprintNumber, Fields: fields}
	return wr.append(ctx, tx, evtType, w.ProjectSlug, KindItem, w.ID, actorID, payload)
}

func (wr Writer) Project(ctx context.Context, tx *sql.Tx, evtType string, p domain.Project, actorID string) error {
	return wr.append(ctx, tx, evtType, p.Slug, KindProject, p.ID, actorID, ProjectPayload{Name: p.Name, Pin: p.Pin})
}

func (wr Writer) append(ctx context.Context, tx *sql.Tx, evtType, projectSlug, kind, entityID, actorID string, payload any) error {
	if tx == nil {
		return fmt.Errorf("event %s: no transaction", evtType)
	}
	now := time.Now
	if wr.Now != nil {
		now = wr.Now
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", evtType, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_slug,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, projectSlug, kind, entityID, actorID, string(data))
	return err
}
