package sprintsyncsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/config"
	"sprintsync/internal/db"
	"sprintsync/internal/engine"
	"sprintsync/internal/migrate"
	"sprintsync/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	h, err := server.New(server.Config{Engine: engine.New(conn, config.Default(), nil)})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	c := New(srv.URL)
	c.ActorID = "ada"
	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "core", "Core", true)
	require.NoError(t, err)
	assert.Equal(t, "ada", p.OwnerID)

	it, err := c.CreateItem(ctx, "core", "Write docs", map[string]any{"type": "task"})
	require.NoError(t, err)
	assert.Equal(t, "task", it.Type)

	it, err = c.Step(ctx, it.Slug, "progress", 3)
	require.NoError(t, err)
	assert.Equal(t, "ready", it.Progress)
	assert.Equal(t, "checked_in", it.Status)

	page, err := c.Listing(ctx, "core", "task")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = c.DeleteItem(ctx, it.ID)
	require.NoError(t, err)

	_, err = c.ItemBySlug(ctx, it.Slug)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	evs, err := c.Events(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, "item.deleted", evs[0].Type)
}
