// Package webhook posts item and project lifecycle events to configured
// HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sprintsync/internal/domain"
	"sprintsync/internal/events"
	"sprintsync/internal/plugins"
)

const (
	Name           = "webhook"
	defaultTimeout = 5 * time.Second
)

// Event is the JSON body of every delivery.
type Event struct {
	ID      string              `json:"id"`
	Type    string              `json:"type"`
	TS      string              `json:"ts"`
	Item    *domain.WorkItem    `json:"item,omitempty"`
	Project *domain.Project     `json:"project,omitempty"`
	Changes map[string][]string `json:"changes,omitempty"`
}

type dispatcher struct {
	urls   []string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// Factory builds the webhook plugin from config.
func Factory(deps plugins.Deps) (plugins.Bundle, error) {
	if deps.Config == nil {
		return plugins.Bundle{}, fmt.Errorf("webhook: missing config")
	}
	cfg := deps.Config.Webhook
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := deps.HTTPClient
	if client == nil || client.Timeout != timeout {
		client = &http.Client{Timeout: timeout}
	}
	d := &dispatcher{
		urls:   cfg.URLs,
		client: client,
		log:    deps.Logger.With().Str("plugin", Name).Logger(),
		now:    time.Now,
	}
	return plugins.Bundle{Item: &ItemPlugin{d: d}, Project: &ProjectPlugin{d: d}}, nil
}

// deliver posts evt to every URL. Each failure is logged; the last one is
// returned so the registry records it.
func (d *dispatcher) deliver(ctx context.Context, evt Event) error {
	evt.ID = uuid.NewString()
	evt.TS = d.now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	var last error
	for _, u := range d.urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if err := d.post(ctx, u, evt, data); err != nil {
			d.log.Warn().Err(err).Str("url", u).Str("event", evt.Type).Msg("webhook delivery failed")
			last = err
		}
	}
	return last
}

func (d *dispatcher) post(ctx context.Context, url string, evt Event, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sprintsync-Event", evt.Type)
	req.Header.Set("X-Sprintsync-Delivery", evt.ID)
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// ItemPlugin announces item changes.
type ItemPlugin struct {
	plugins.NopItemHooks
	d *dispatcher
}

func (p *ItemPlugin) Name() string { return Name }

func (p *ItemPlugin) AfterCreate(ctx context.Context, v domain.ItemView) (domain.ItemView, error) {
	item := v.Item
	return v, p.d.deliver(ctx, Event{Type: events.ItemCreated, Item: &item})
}

func (p *ItemPlugin) AfterUpdate(ctx context.Context, v, old domain.ItemView) (domain.ItemView, error) {
	item := v.Item
	return v, p.d.deliver(ctx, Event{Type: events.ItemUpdated, Item: &item, Changes: itemChanges(old.Item, v.Item)})
}

func (p *ItemPlugin) AfterDelete(ctx context.Context, v domain.ItemView) (domain.ItemView, error) {
	item := v.Item
	return v, p.d.deliver(ctx, Event{Type: events.ItemDeleted, Item: &item})
}

// ProjectPlugin announces project changes.
type ProjectPlugin struct {
	plugins.NopProjectHooks
	d *dispatcher
}

func (p *ProjectPlugin) Name() string { return Name }

func (p *ProjectPlugin) AfterCreate(ctx context.Context, v domain.ProjectView) (domain.ProjectView, error) {
	pr := v.Project
	return v, p.d.deliver(ctx, Event{Type: events.ProjectCreated, Project: &pr})
}

func (p *ProjectPlugin) AfterUpdate(ctx context.Context, v, _ domain.ProjectView) (domain.ProjectView, error) {
	pr := v.Project
	return v, p.d.deliver(ctx, Event{Type: events.ProjectUpdated, Project: &pr})
}

func (p *ProjectPlugin) AfterDelete(ctx context.Context, v domain.ProjectView) (domain.ProjectView, error) {
	pr := v.Project
	return v, p.d.deliver(ctx, Event{Type: events.ProjectDeleted, Project: &pr})
}

// itemChanges lists the axis fields that moved, as [old, new] pairs.
func itemChanges(old, cur domain.WorkItem) map[string][]string {
	out := map[string][]string{}
	add := func(field, a, b string) {
		if a != b {
			out[field] = []string{a, b}
		}
	}
	add("progress", string(old.Progress), string(cur.Progress))
	add("priority", string(old.Priority), string(cur.Priority))
	add("status", string(old.Status), string(cur.Status))
	add("type", string(old.Type), string(cur.Type))
	if len(out) == 0 {
		return nil
	}
	return out
}
