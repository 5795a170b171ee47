package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sprintsync/internal/domain"
	"sprintsync/internal/events"
)

const defaultSprintWeeks = 2

// ProjectPatch carries a partial project update. The slug cannot change.
type ProjectPatch struct {
	Name        *string
	Description *string
	Pin         *bool
	OwnerID     *string
	StartDate   *string
	EndDate     *string
	SprintWeeks *int
}

func (p ProjectPatch) apply(pr domain.Project) domain.Project {
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.Pin != nil {
		pr.Pin = *p.Pin
	}
	if p.OwnerID != nil {
		pr.OwnerID = *p.OwnerID
	}
	if p.StartDate != nil {
		pr.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		pr.EndDate = *p.EndDate
	}
	if p.SprintWeeks != nil {
		pr.SprintWeeks = *p.SprintWeeks
	}
	return pr
}

func (e Engine) projectView(ctx context.Context, p domain.Project) domain.ProjectView {
	v := domain.ProjectView{Project: p}
	if p.OwnerID != "" {
		if a, err := e.Repo.GetAccount(ctx, p.OwnerID); err == nil {
			v.OwnerName = a.Name
			v.OwnerEmail = a.Email
		}
	}
	return v
}

func (e Engine) CreateProject(ctx context.Context, p domain.Project, actor string) (_ domain.Project, err error) {
	actor = actorOrDefault(actor)
	ctx, span := e.span(ctx, "create_project", attribute.String("project", p.Slug))
	defer func() { endSpan(span, err) }()

	p.Slug = strings.TrimSpace(p.Slug)
	if p.OwnerID == "" {
		p.OwnerID = actor
	}
	if p.SprintWeeks == 0 {
		p.SprintWeeks = defaultSprintWeeks
	}
	if err := domain.ValidateProject(p); err != nil {
		return domain.Project{}, err
	}
	reg := e.registry()
	v, err := reg.ProjectBeforeCreate(ctx, e.projectView(ctx, p))
	if err != nil {
		return domain.Project{}, err
	}
	p = v.Project
	if err := domain.ValidateProject(p); err != nil {
		return domain.Project{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := e.stamp()
	p.CreatedAt, p.UpdatedAt = now, now

	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureAccounts(ctx, tx, actor, p.OwnerID); err != nil {
			return err
		}
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return translate("project", p.Slug, err)
		}
		return e.Events.Project(ctx, tx, events.ProjectCreated, p, actor)
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.log.Info().Str("project", p.Slug).Msg("project created")

	stored := p
	_, err = reg.ProjectAfterCreate(ctx, e.projectView(ctx, p), func(ctx context.Context, v domain.ProjectView) (domain.ProjectView, error) {
		if domain.MetaEqual(v.Project.PluginMeta, stored.PluginMeta) {
			return v, nil
		}
		next := stored
		next.PluginMeta = domain.CloneMeta(v.Project.PluginMeta)
		next.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateProject(ctx, nil, next); err != nil {
			return v, translate("project", stored.Slug, err)
		}
		stored = next
		return v, nil
	})
	if err != nil {
		return stored, err
	}
	return e.GetProject(ctx, p.Slug)
}

func (e Engine) UpdateProject(ctx context.Context, ref string, patch ProjectPatch, actor string) (_ domain.Project, err error) {
	actor = actorOrDefault(actor)
	ctx, span := e.span(ctx, "update_project", attribute.String("project", ref))
	defer func() { endSpan(span, err) }()

	old, err := e.GetProject(ctx, ref)
	if err != nil {
		return domain.Project{}, err
	}
	p := patch.apply(old)
	p.PluginMeta = domain.CloneMeta(old.PluginMeta)
	if err := domain.ValidateProject(p); err != nil {
		return domain.Project{}, err
	}
	reg := e.registry()
	oldView := e.projectView(ctx, old)
	v, err := reg.ProjectBeforeUpdate(ctx, old.ID, e.projectView(ctx, p), oldView)
	if err != nil {
		return domain.Project{}, err
	}
	p = v.Project
	p.ID, p.Slug, p.CreatedAt = old.ID, old.Slug, old.CreatedAt
	if err := domain.ValidateProject(p); err != nil {
		return domain.Project{}, err
	}
	p.UpdatedAt = e.stamp()

	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureAccounts(ctx, tx, actor, p.OwnerID); err != nil {
			return err
		}
		if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
			return translate("project", p.Slug, err)
		}
		return e.Events.Project(ctx, tx, events.ProjectUpdated, p, actor)
	})
	if err != nil {
		return domain.Project{}, err
	}

	v, err = reg.ProjectAfterUpdate(ctx, e.projectView(ctx, p), oldView)
	if err != nil {
		return p, err
	}
	if !domain.MetaEqual(v.Project.PluginMeta, p.PluginMeta) {
		p.PluginMeta = domain.CloneMeta(v.Project.PluginMeta)
		if err := e.Repo.UpdateProject(ctx, nil, p); err != nil {
			return p, translate("project", p.Slug, err)
		}
	}
	return e.GetProject(ctx, p.Slug)
}

// DeleteProject removes an empty project. Projects that still hold items
// are refused with a ConflictError.
func (e Engine) DeleteProject(ctx context.Context, ref, actor string) (_ domain.Project, err error) {
	actor = actorOrDefault(actor)
	ctx, span := e.span(ctx, "delete_project", attribute.String("project", ref))
	defer func() { endSpan(span, err) }()

	p, err := e.GetProject(ctx, ref)
	if err != nil {
		return domain.Project{}, err
	}
	n, err := e.Repo.CountItems(ctx, domain.ItemFilters{ProjectSlug: p.Slug})
	if err != nil {
		return domain.Project{}, err
	}
	if n > 0 {
		return domain.Project{}, domain.ConflictError{Kind: "project", Key: p.Slug, Reason: fmt.Sprintf("still holds %d items", n)}
	}
	reg := e.registry()
	if _, err := reg.ProjectBeforeDelete(ctx, p.ID); err != nil {
		return domain.Project{}, err
	}
	var deleted domain.Project
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = e.Repo.DeleteProject(ctx, tx, p.Slug)
		if err != nil {
			return translate("project", p.Slug, err)
		}
		if err := e.ensureAccounts(ctx, tx, actor); err != nil {
			return err
		}
		return e.Events.Project(ctx, tx, events.ProjectDeleted, deleted, actor)
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.log.Info().Str("project", deleted.Slug).Msg("project deleted")

	v, err := reg.ProjectAfterDelete(ctx, e.projectView(ctx, deleted))
	if err != nil {
		return deleted, err
	}
	return v.Project, nil
}

// GetProject accepts a project slug or id.
func (e Engine) GetProject(ctx context.Context, ref string) (domain.Project, error) {
	s, err := e.resolveProject(ctx, ref)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, s)
	return p, translate("project", ref, err)
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx)
}
