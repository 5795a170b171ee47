package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/config"
	"sprintsync/internal/db"
	"sprintsync/internal/domain"
	"sprintsync/internal/engine"
	"sprintsync/internal/migrate"
	"sprintsync/internal/plugins"
)

type testServer struct {
	URL    string
	client *http.Client
}

type vetoPlugin struct {
	plugins.NopItemHooks
}

func (vetoPlugin) Name() string { return "veto" }

func (vetoPlugin) BeforeCreate(_ context.Context, v domain.ItemView) (domain.ItemView, error) {
	if v.Item.Title == "forbidden" {
		return v, plugins.Abort(errors.New("title refused"))
	}
	return v, nil
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	reg := plugins.NewRegistry()
	reg.Register(plugins.Bundle{Item: vetoPlugin{}})
	e := engine.New(conn, config.Default(), reg)

	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: auth})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		conn.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String() + "/v1", client: &http.Client{}}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func TestItemLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := srv.do(t, http.MethodPost, "/projects", map[string]any{"slug": "core", "name": "Core"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	p := decode[domain.Project](t, data)
	assert.Equal(t, engine.DefaultActor, p.OwnerID)

	res, data = srv.do(t, http.MethodPost, "/items", map[string]any{
		"title":    "Ship it",
		"project":  "core",
		"type":     "backlog",
		"beg_date": "2024-03-01",
		"est_days": 2,
	}, map[string]string{"X-Actor-Id": "ada"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	item := decode[domain.WorkItem](t, data)
	assert.NotEmpty(t, item.Slug)
	assert.Equal(t, "ada", item.OwnerID)
	assert.NotEmpty(t, item.DueDate)

	res, data = srv.do(t, http.MethodGet, "/slugs/"+item.Slug, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, item.ID, decode[domain.WorkItem](t, data).ID)

	res, data = srv.do(t, http.MethodPatch, "/items/"+item.ID, map[string]any{"progress": "ready"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[domain.WorkItem](t, data)
	assert.Equal(t, domain.ProgressReady, updated.Progress)
	assert.Equal(t, domain.StatusCheckedIn, updated.Status)

	res, data = srv.do(t, http.MethodGet, "/items/"+item.ID+"/audits", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.NotEmpty(t, decode[[]domain.Audit](t, data))

	res, data = srv.do(t, http.MethodGet, "/listings/core_backlog", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decode[ItemList](t, data)
	assert.Equal(t, 1, list.Total)

	res, data = srv.do(t, http.MethodGet, "/listings/core_task", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 0, decode[ItemList](t, data).Total)

	res, data = srv.do(t, http.MethodPost, "/slugs/"+item.Slug+"/switch", map[string]any{"type": "task"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.TypeTask, decode[domain.WorkItem](t, data).Type)

	res, data = srv.do(t, http.MethodDelete, "/projects/core", nil, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "conflict", errorCode(t, data))

	res, data = srv.do(t, http.MethodDelete, "/items/"+item.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, _ = srv.do(t, http.MethodGet, "/items/"+item.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, "/events?entity_kind=item", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evs := decode[[]domain.Event](t, data)
	require.NotEmpty(t, evs)
	assert.Equal(t, "item.deleted", evs[0].Type)
}

func TestStepAndCircle(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	srv.do(t, http.MethodPost, "/projects", map[string]any{"slug": "core", "name": "Core"}, nil)
	_, data := srv.do(t, http.MethodPost, "/items", map[string]any{"title": "Axis", "project": "core"}, nil)
	item := decode[domain.WorkItem](t, data)

	res, data := srv.do(t, http.MethodPost, "/slugs/"+item.Slug+"/step", map[string]any{"axis": "progress"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	stepped := decode[domain.WorkItem](t, data)
	assert.Equal(t, domain.Progresses.Values()[1], stepped.Progress)
	assert.Equal(t, domain.StatusStarted, stepped.Status)

	res, data = srv.do(t, http.MethodPost, "/slugs/"+item.Slug+"/step", map[string]any{"axis": "progress", "delta": -10}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.Progresses.First(), decode[domain.WorkItem](t, data).Progress)

	res, data = srv.do(t, http.MethodPost, "/slugs/"+item.Slug+"/circle", map[string]any{"axis": "priority"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.NotEqual(t, item.Priority, decode[domain.WorkItem](t, data).Priority)

	res, data = srv.do(t, http.MethodPost, "/slugs/"+item.Slug+"/step", map[string]any{"axis": "colour"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := srv.do(t, http.MethodPost, "/items", map[string]any{"title": "orphan", "project": "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", errorCode(t, data))

	srv.do(t, http.MethodPost, "/projects", map[string]any{"slug": "core", "name": "Core"}, nil)
	res, data = srv.do(t, http.MethodPost, "/projects", map[string]any{"slug": "core", "name": "Again"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/items", map[string]any{"title": "forbidden", "project": "core"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "plugin_rejected", errorCode(t, data))

	res, data = srv.do(t, http.MethodGet, "/listings/core", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodGet, "/items?sprint=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestJWTAuth(t *testing.T) {
	secret := "s3cret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret})

	res, _ := srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := srv.do(t, http.MethodGet, "/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	res, _ = srv.do(t, http.MethodGet, "/projects", nil, map[string]string{"X-Actor-Id": "ada"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = srv.do(t, http.MethodGet, "/projects", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ada",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)

	res, data = srv.do(t, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + signed})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[map[string]string](t, data)
	assert.Equal(t, "ada", me["actor_id"])
	assert.Equal(t, "jwt", me["source"])
}

func TestLocalModeDefaultsActor(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := srv.do(t, http.MethodGet, "/me", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, engine.DefaultActor, decode[map[string]string](t, data)["actor_id"])

	res, data = srv.do(t, http.MethodPut, "/accounts", map[string]any{"id": "ada", "name": "Ada"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "Ada", decode[domain.Account](t, data).Name)
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "s3cret"})
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ada"},
	})
	signed, err := tok.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + signed}

	res, data := srv.do(t, http.MethodPost, "/accounts/bob/keys", map[string]any{"name": "ci"}, bearer)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/accounts/ada/keys", map[string]any{"name": "ci"}, bearer)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	created := decode[CreatedAPIKey](t, data)
	require.NotEmpty(t, created.Key)
	assert.NotContains(t, string(data), created.KeyHash)

	res, data = srv.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": created.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[map[string]string](t, data)
	assert.Equal(t, "ada", me["actor_id"])
	assert.Equal(t, "api_key", me["source"])

	res, _ = srv.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": "ssk_nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = srv.do(t, http.MethodDelete, "/keys/"+created.ID, nil, bearer)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, _ = srv.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": created.Key})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
