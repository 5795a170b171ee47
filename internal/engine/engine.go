package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sprintsync/internal/config"
	"sprintsync/internal/domain"
	"sprintsync/internal/events"
	"sprintsync/internal/logging"
	"sprintsync/internal/plugins"
	"sprintsync/internal/repo"
	"sprintsync/internal/slug"
	"sprintsync/internal/telemetry"
)

// DefaultActor is used when an operation carries no acting user.
const DefaultActor = "local-user"

// Engine sequences every item and project mutation: defaults, validation,
// slug and due-date derivation, plugin hooks, persistence, audits and
// events.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Slugs   *slug.Allocator
	Plugins *plugins.Registry
	Now     func() time.Time

	log    zerolog.Logger
	tracer trace.Tracer
}

// New wires an engine over db. A nil registry runs no plugins.
func New(db *sql.DB, cfg *config.Config, reg *plugins.Registry) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if reg == nil {
		reg = plugins.NewRegistry()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Events:  events.Writer{},
		Slugs:   slug.New(r, cfg.Slug.MaxAttempts, cfg.Slug.TokenBytes),
		Plugins: reg,
		Now:     time.Now,
		log:     logging.Component("engine"),
		tracer:  telemetry.Tracer("sprintsync/engine"),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) registry() *plugins.Registry {
	if e.Plugins == nil {
		return plugins.NewRegistry()
	}
	return e.Plugins
}

func (e Engine) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	t := e.tracer
	if t == nil {
		t = telemetry.Tracer("sprintsync/engine")
	}
	return t.Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return DefaultActor
	}
	return actor
}

// translate maps repository sentinels onto domain errors.
func translate(kind, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return domain.NotFoundError{Kind: kind, Key: key}
	case errors.Is(err, repo.ErrConflict):
		return domain.ConflictError{Kind: kind, Key: key, Reason: "already exists"}
	}
	return err
}

// ensureAccounts makes sure every referenced account row exists.
func (e Engine) ensureAccounts(ctx context.Context, tx *sql.Tx, ids ...string) error {
	now := e.stamp()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := e.Repo.EnsureAccount(ctx, tx, id, now); err != nil {
			return fmt.Errorf("ensure account %s: %w", id, err)
		}
	}
	return nil
}

// EnsureAccount creates or refreshes an account.
func (e Engine) EnsureAccount(ctx context.Context, id, name, email string) (domain.Account, error) {
	if id == "" {
		return domain.Account{}, domain.ValidationError{Field: "id", Reason: "required"}
	}
	a := domain.Account{ID: id, Name: name, Email: email, CreatedAt: e.stamp()}
	if err := e.Repo.UpsertAccount(ctx, nil, a); err != nil {
		return domain.Account{}, err
	}
	return e.Repo.GetAccount(ctx, id)
}

func (e Engine) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return e.Repo.ListAccounts(ctx)
}

// RecentEvents returns the most recent log entries, newest first.
func (e Engine) RecentEvents(ctx context.Context, limit int, projectSlug, entityKind, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, projectSlug, "", entityKind, entityID)
}
