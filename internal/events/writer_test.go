package events_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/db"
	"sprintsync/internal/domain"
	"sprintsync/internal/events"
	"sprintsync/internal/migrate"
	"sprintsync/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func TestItemEventPayload(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	w := events.Writer{Now: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }}
	item := domain.WorkItem{ID: "i1", Slug: "core-S2-ab12", Title: "Fix bug", Type: domain.TypeTask, SprintNumber: 2, ProjectSlug: "core"}

	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error {
		return w.Item(ctx, tx, events.ItemUpdated, item, "ada", "title", "type")
	}))

	evs, err := r.LatestEvents(ctx, 10, "core", "", events.KindItem, "")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.ItemUpdated, evs[0].Type)
	assert.Equal(t, "i1", evs[0].EntityID)
	assert.Equal(t, "ada", evs[0].ActorID)
	assert.Equal(t, "2024-01-01T12:00:00Z", evs[0].TS)

	var p events.ItemPayload
	require.NoError(t, json.Unmarshal([]byte(evs[0].Payload), &p))
	assert.Equal(t, events.ItemPayload{Slug: "core-S2-ab12", Title: "Fix bug", Type: domain.TypeTask, Sprint: 2, Fields: []string{"title", "type"}}, p)
}

func TestProjectEventAndRollback(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	w := events.Writer{}
	p := domain.Project{ID: "p1", Slug: "ops", Name: "Ops", Pin: true}

	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error {
		return w.Project(ctx, tx, events.ProjectCreated, p, "ada")
	}))
	_ = r.WithTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, w.Project(ctx, tx, events.ProjectDeleted, p, "ada"))
		return assert.AnError
	})

	evs, err := r.LatestEvents(ctx, 10, "", "", events.KindProject, "p1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.JSONEq(t, `{"name":"Ops","pin":true}`, evs[0].Payload)
}

func TestAppendNeedsTransaction(t *testing.T) {
	err := events.Writer{}.Item(context.Background(), nil, events.ItemCreated, domain.WorkItem{}, "ada")
	assert.Error(t, err)
}
