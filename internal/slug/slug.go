// Package slug allocates human-readable item slugs of the form
// {project}-S{sprint}-{token}.
package slug

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"sprintsync/internal/domain"
	"sprintsync/internal/logging"
)

const (
	DefaultMaxAttempts = 8
	DefaultTokenBytes  = 2
)

// Store is the subset of persistence the allocator needs.
type Store interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	ResolveProjectSlug(ctx context.Context, ref string) (string, error)
}

type Allocator struct {
	Store       Store
	MaxAttempts int
	TokenBytes  int
	// Token overrides the random token source; used by tests.
	Token func() (string, error)

	log zerolog.Logger
}

func New(store Store, maxAttempts, tokenBytes int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if tokenBytes <= 0 {
		tokenBytes = DefaultTokenBytes
	}
	return &Allocator{
		Store:       store,
		MaxAttempts: maxAttempts,
		TokenBytes:  tokenBytes,
		log:         logging.Component("slug"),
	}
}

// Compose builds a slug from its parts.
func Compose(projectSlug string, sprint int, token string) string {
	return fmt.Sprintf("%s-S%d-%s", projectSlug, sprint, token)
}

func (a *Allocator) token() (string, error) {
	if a.Token != nil {
		return a.Token()
	}
	n := a.TokenBytes
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Allocate returns item.Slug when already set. Otherwise it draws tokens until
// an unused slug is found, failing with domain.ConflictError once the attempt
// budget is spent.
func (a *Allocator) Allocate(ctx context.Context, item domain.WorkItem) (string, error) {
	if item.Slug != "" {
		return item.Slug, nil
	}
	projectSlug, err := a.Store.ResolveProjectSlug(ctx, item.ProjectSlug)
	if err != nil {
		return "", fmt.Errorf("resolve project %s: %w", item.ProjectSlug, err)
	}
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	errTaken := errors.New("slug taken")
	var found string
	op := func() error {
		tok, err := a.token()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("slug token: %w", err))
		}
		candidate := Compose(projectSlug, item.SprintNumber, tok)
		exists, err := a.Store.SlugExists(ctx, candidate)
		if err != nil {
			return backoff.Permanent(err)
		}
		if exists {
			return fmt.Errorf("%w: %s", errTaken, candidate)
		}
		found = candidate
		return nil
	}
	notify := func(err error, _ time.Duration) {
		a.log.Debug().Err(err).Str("project", projectSlug).Int("sprint", item.SprintNumber).Msg("slug collision, retrying")
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if errors.Is(err, errTaken) {
			return "", domain.ConflictError{
				Kind:   "slug",
				Key:    Compose(projectSlug, item.SprintNumber, "*"),
				Reason: fmt.Sprintf("no free token after %d attempts", attempts),
			}
		}
		return "", err
	}
	return found, nil
}
