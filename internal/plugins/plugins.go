// Package plugins defines the lifecycle hook contracts for items and
// projects and the registry that runs them around every mutation.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"sprintsync/internal/config"
	"sprintsync/internal/domain"
)

// Plugin is the common part of every hook set.
type Plugin interface {
	Name() string
}

// ItemHooks run around item create, update and delete. Every hook receives
// its own copy of the item and returns the value the orchestrator should
// continue with.
type ItemHooks interface {
	Plugin
	BeforeCreate(ctx context.Context, item domain.ItemView) (domain.ItemView, error)
	AfterCreate(ctx context.Context, item domain.ItemView) (domain.ItemView, error)
	BeforeUpdate(ctx context.Context, id string, item, old domain.ItemView) (domain.ItemView, error)
	AfterUpdate(ctx context.Context, item, old domain.ItemView) (domain.ItemView, error)
	BeforeDelete(ctx context.Context, id string) (string, error)
	AfterDelete(ctx context.Context, item domain.ItemView) (domain.ItemView, error)
}

// ProjectHooks mirror ItemHooks for projects.
type ProjectHooks interface {
	Plugin
	BeforeCreate(ctx context.Context, p domain.ProjectView) (domain.ProjectView, error)
	AfterCreate(ctx context.Context, p domain.ProjectView) (domain.ProjectView, error)
	BeforeUpdate(ctx context.Context, id string, p, old domain.ProjectView) (domain.ProjectView, error)
	AfterUpdate(ctx context.Context, p, old domain.ProjectView) (domain.ProjectView, error)
	BeforeDelete(ctx context.Context, id string) (string, error)
	AfterDelete(ctx context.Context, p domain.ProjectView) (domain.ProjectView, error)
}

// NopItemHooks passes every value through. Embed it to implement only the
// hooks a plugin cares about.
type NopItemHooks struct{}

func (NopItemHooks) BeforeCreate(_ context.Context, item domain.ItemView) (domain.ItemView, error) {
	return item, nil
}

func (NopItemHooks) AfterCreate(_ context.Context, item domain.ItemView) (domain.ItemView, error) {
	return item, nil
}

func (NopItemHooks) BeforeUpdate(_ context.Context, _ string, item, _ domain.ItemView) (domain.ItemView, error) {
	return item, nil
}

func (NopItemHooks) AfterUpdate(_ context.Context, item, _ domain.ItemView) (domain.ItemView, error) {
	return item, nil
}

func (NopItemHooks) BeforeDelete(_ context.Context, id string) (string, error) { return id, nil }

func (NopItemHooks) AfterDelete(_ context.Context, item domain.ItemView) (domain.ItemView, error) {
	return item, nil
}

// NopProjectHooks passes every value through.
type NopProjectHooks struct{}

func (NopProjectHooks) BeforeCreate(_ context.Context, p domain.ProjectView) (domain.ProjectView, error) {
	return p, nil
}

func (NopProjectHooks) AfterCreate(_ context.Context, p domain.ProjectView) (domain.ProjectView, error) {
	return p, nil
}

func (NopProjectHooks) BeforeUpdate(_ context.Context, _ string, p, _ domain.ProjectView) (domain.ProjectView, error) {
	return p, nil
}

func (NopProjectHooks) AfterUpdate(_ context.Context, p, _ domain.ProjectView) (domain.ProjectView, error) {
	return p, nil
}

func (NopProjectHooks) BeforeDelete(_ context.Context, id string) (string, error) { return id, nil }

func (NopProjectHooks) AfterDelete(_ context.Context, p domain.ProjectView) (domain.ProjectView, error) {
	return p, nil
}

// HardError aborts the enclosing operation. Any other hook error is logged
// and the operation continues with the value from before the hook.
type HardError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *HardError) Error() string {
	if e.Plugin == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("plugin %s %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HardError) Unwrap() error { return e.Err }

// Abort marks err as a hard failure.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &HardError{Err: err}
}

// IsHard reports whether err carries a HardError.
func IsHard(err error) bool {
	var h *HardError
	return errors.As(err, &h)
}

// Deps is what factories get to construct a plugin.
type Deps struct {
	Config     *config.Config
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Bundle is what one catalog entry contributes. Either side may be nil.
type Bundle struct {
	Item    ItemHooks
	Project ProjectHooks
}

// Factory constructs one plugin's hook sets.
type Factory func(Deps) (Bundle, error)

// Catalog maps plugin names to their factories.
type Catalog map[string]Factory
