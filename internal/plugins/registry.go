package plugins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"sprintsync/internal/config"
	"sprintsync/internal/domain"
	"sprintsync/internal/logging"
	"sprintsync/internal/telemetry"
)

const scopeName = "sprintsync/plugins"

// Registry holds the active plugins in registration order and runs their
// hooks. Hooks run one after another, each seeing the value returned by the
// one before it.
type Registry struct {
	items    []ItemHooks
	projects []ProjectHooks

	log    zerolog.Logger
	tracer trace.Tracer
	calls  metric.Int64Counter
	errs   metric.Int64Counter
	dur    metric.Float64Histogram
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	m := telemetry.Meter(scopeName)
	calls, _ := m.Int64Counter("sprintsync.plugin.hook.calls",
		metric.WithDescription("Plugin hook invocations"),
	)
	errs, _ := m.Int64Counter("sprintsync.plugin.hook.errors",
		metric.WithDescription("Plugin hook invocations that returned an error"),
	)
	dur, _ := m.Float64Histogram("sprintsync.plugin.hook.duration",
		metric.WithDescription("Plugin hook duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &Registry{
		log:    logging.Component("plugins"),
		tracer: telemetry.Tracer(scopeName),
		calls:  calls,
		errs:   errs,
		dur:    dur,
	}
}

// Build instantiates every catalog entry named in cfg.Enabled, in that
// order, skipping names on the deny list. Unknown names are logged and
// skipped; a factory error fails the build.
func Build(catalog Catalog, cfg config.PluginsConfig, deps Deps) (*Registry, error) {
	r := NewRegistry()
	seen := map[string]bool{}
	for _, name := range cfg.Enabled {
		if seen[name] || !cfg.PluginEnabled(name) {
			continue
		}
		seen[name] = true
		factory, ok := catalog[name]
		if !ok {
			r.log.Warn().Str("plugin", name).Msg("unknown plugin, skipping")
			continue
		}
		b, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", name, err)
		}
		r.Register(b)
	}
	return r, nil
}

// Register appends a bundle's hook sets.
func (r *Registry) Register(b Bundle) {
	if b.Item != nil {
		r.items = append(r.items, b.Item)
		r.log.Debug().Str("plugin", b.Item.Name()).Msg("item plugin registered")
	}
	if b.Project != nil {
		r.projects = append(r.projects, b.Project)
		r.log.Debug().Str("plugin", b.Project.Name()).Msg("project plugin registered")
	}
}

// ItemPlugins returns the item hook sets in registration order.
func (r *Registry) ItemPlugins() []ItemHooks {
	return append([]ItemHooks(nil), r.items...)
}

// ProjectPlugins returns the project hook sets in registration order.
func (r *Registry) ProjectPlugins() []ProjectHooks {
	return append([]ProjectHooks(nil), r.projects...)
}

// Names lists every registered plugin name once.
func (r *Registry) Names() []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range r.items {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			out = append(out, p.Name())
		}
	}
	for _, p := range r.projects {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			out = append(out, p.Name())
		}
	}
	return out
}

// invoke runs one hook inside a span. Soft errors are logged and swallowed;
// hard errors and context cancellation are returned.
func (r *Registry) invoke(ctx context.Context, plugin, hook string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attrs := []attribute.KeyValue{
		attribute.String("plugin.name", plugin),
		attribute.String("plugin.hook", hook),
	}
	ctx, span := r.tracer.Start(ctx, "plugin."+hook, trace.WithAttributes(attrs...))
	defer span.End()
	r.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	start := time.Now()

	err := fn(ctx)
	r.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.errs.Add(ctx, 1, metric.WithAttributes(attrs...))

	var hard *HardError
	if errors.As(err, &hard) {
		if hard.Plugin == "" {
			hard.Plugin = plugin
			hard.Hook = hook
		}
		r.log.Error().Err(err).Str("plugin", plugin).Str("hook", hook).Msg("plugin hook aborted operation")
		return hard
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return err
		}
	}
	r.log.Warn().Err(err).Str("plugin", plugin).Str("hook", hook).Msg("plugin hook failed, continuing")
	return nil
}

// BeforeCreate threads item through every plugin's BeforeCreate.
func (r *Registry) BeforeCreate(ctx context.Context, item domain.ItemView) (domain.ItemView, error) {
	for _, p := range r.items {
		err := r.invoke(ctx, p.Name(), "before_create", func(ctx context.Context) error {
			out, err := p.BeforeCreate(ctx, item.Clone())
			if err == nil {
				item = out
			}
			return err
		})
		if err != nil {
			return item, err
		}
	}
	return item, nil
}

// AfterCreate runs each plugin's AfterCreate and calls persist with the
// result after every hook, so metadata gathered by one plugin is stored
// before the next runs.
func (r *Registry) AfterCreate(ctx context.Context, item domain.ItemView, persist func(context.Context, domain.ItemView) (domain.ItemView, error)) (domain.ItemView, error) {
	for _, p := range r.items {
		err := r.invoke(ctx, p.Name(), "after_create", func(ctx context.Context) error {
			out, err := p.AfterCreate(ctx, item.Clone())
			if err == nil {
				item = out
			}
			return err
		})
		if err != nil {
			return item, err
		}
		stored, err := persist(ctx, item)
		if err != nil {
			return item, fmt.Errorf("persist after %s: %w", p.Name(), err)
		}
		item = stored
	}
	return item, nil
}

func (r *Registry) BeforeUpdate(ctx context.Context, id string, item, old domain.ItemView) (domain.ItemView, error) {
	for _, p := range r.items {
		err := r.invoke(ctx, p.Name(), "before_update", func(ctx context.Context) error {
			out, err := p.BeforeUpdate(ctx, id, item.Clone(), old.Clone())
			if err == nil {
				item = out
			}
			return err
		})
		if err != nil {
			return item, err
		}
	}
	return item, nil
}

func (r *Registry) AfterUpdate(ctx context.Context, item, old domain.ItemView) (domain.ItemView, error) {
	for _, p := range r.items {
		err := r.invoke(ctx, p.Name(), "after_update", func(ctx context.Context) error {
			out, err := p.AfterUpdate(ctx, item.Clone(), old.Clone())
			if err == nil {
				item = out
			}
			return err
		})
		if err != nil {
			return item, err
		}
	}
	return item, nil
}

func (r *Registry) BeforeDelete(ctx context.Context, id string) (string, error) {
	for _, p := range r.items {
		err := r.invoke(ctx, p.Name(), "before_delete", func(ctx context.Context) error {
			out, err := p.BeforeDelete(ctx, id)
			if err == nil && out != "" {
				id = out
			}
			return err
		})
		if err != nil {
			return id, err
		}
	}
	return id, nil
}

func (r *Registry) AfterDelete(ctx context.Context, item domain.ItemView) (domain.ItemView, error) {
	for _, p := range r.items {
		err := r.invoke(ctx, p.Name(), "after_delete", func(ctx context.Context) error {
			out, err := p.AfterDelete(ctx, item.Clone())
			if err == nil {
				item = out
			}
			return err
		})
		if err != nil {
			return item, err
		}
	}
	return item, nil
}

func (r *Registry) ProjectBeforeCreate(ctx context.Context, p domain.ProjectView) (domain.ProjectView, error) {
	for _, h := range r.projects {
		err := r.invoke(ctx, h.Name(), "project.before_create", func(ctx context.Context) error {
			out, err := h.BeforeCreate(ctx, p.Clone())
			if err == nil {
				p = out
			}
			return err
		})
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// ProjectAfterCreate mirrors AfterCreate for projects.
func (r *Registry) ProjectAfterCreate(ctx context.Context, p domain.ProjectView, persist func(context.Context, domain.ProjectView) (domain.ProjectView, error)) (domain.ProjectView, error) {
	for _, h := range r.projects {
		err := r.invoke(ctx, h.Name(), "project.after_create", func(ctx context.Context) error {
			out, err := h.AfterCreate(ctx, p.Clone())
			if err == nil {
				p = out
			}
			return err
		})
		if err != nil {
			return p, err
		}
		stored, err := persist(ctx, p)
		if err != nil {
			return p, fmt.Errorf("persist after %s: %w", h.Name(), err)
		}
		p = stored
	}
	return p, nil
}

func (r *Registry) ProjectBeforeUpdate(ctx context.Context, id string, p, old domain.ProjectView) (domain.ProjectView, error) {
	for _, h := range r.projects {
		err := r.invoke(ctx, h.Name(), "project.before_update", func(ctx context.Context) error {
			out, err := h.BeforeUpdate(ctx, id, p.Clone(), old.Clone())
			if err == nil {
				p = out
			}
			return err
		})
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func (r *Registry) ProjectAfterUpdate(ctx context.Context, p, old domain.ProjectView) (domain.ProjectView, error) {
	for _, h := range r.projects {
		err := r.invoke(ctx, h.Name(), "project.after_update", func(ctx context.Context) error {
			out, err := h.AfterUpdate(ctx, p.Clone(), old.Clone())
			if err == nil {
				p = out
			}
			return err
		})
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func (r *Registry) ProjectBeforeDelete(ctx context.Context, id string) (string, error) {
	for _, h := range r.projects {
		err := r.invoke(ctx, h.Name(), "project.before_delete", func(ctx context.Context) error {
			out, err := h.BeforeDelete(ctx, id)
			if err == nil && out != "" {
				id = out
			}
			return err
		})
		if err != nil {
			return id, err
		}
	}
	return id, nil
}

func (r *Registry) ProjectAfterDelete(ctx context.Context, p domain.ProjectView) (domain.ProjectView, error) {
	for _, h := range r.projects {
		err := r.invoke(ctx, h.Name(), "project.after_delete", func(ctx context.Context) error {
			out, err := h.AfterDelete(ctx, p.Clone())
			if err == nil {
				p = out
			}
			return err
		})
		if err != nil {
			return p, err
		}
	}
	return p, nil
}
