package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sprintsync/internal/domain"
	"sprintsync/internal/events"
	"sprintsync/internal/repo"
)

// ItemPatch carries a partial item update. Nil fields are left alone.
type ItemPatch struct {
	Title        *string
	Description  *string
	ProjectSlug  *string
	SprintNumber *int
	Progress     *domain.Progress
	Priority     *domain.Priority
	Status       *domain.Status
	Type         *domain.ItemType
	Category     *domain.Category
	Order        *int
	Points       *int
	EstDays      *float64
	BegDate      *string
	EndDate      *string
	DueDate      *string
	Labels       *[]string
	OwnerID      *string
	AssigneeID   *string
}

func (p ItemPatch) apply(w domain.WorkItem) domain.WorkItem {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&w.Title, p.Title)
	set(&w.Description, p.Description)
	set(&w.ProjectSlug, p.ProjectSlug)
	set(&w.BegDate, p.BegDate)
	set(&w.EndDate, p.EndDate)
	set(&w.DueDate, p.DueDate)
	set(&w.OwnerID, p.OwnerID)
	set(&w.AssigneeID, p.AssigneeID)
	if p.SprintNumber != nil {
		w.SprintNumber = *p.SprintNumber
	}
	if p.Progress != nil {
		w.Progress = *p.Progress
	}
	if p.Priority != nil {
		w.Priority = *p.Priority
	}
	if p.Status != nil {
		w.Status = *p.Status
	}
	if p.Type != nil {
		w.Type = *p.Type
	}
	if p.Category != nil {
		w.Category = *p.Category
	}
	if p.Order != nil {
		w.Order = *p.Order
	}
	if p.Points != nil {
		w.Points = *p.Points
	}
	if p.EstDays != nil {
		w.EstDays = *p.EstDays
	}
	if p.Labels != nil {
		w.Labels = append([]string(nil), (*p.Labels)...)
	}
	return w
}

// applyProgressCoupling keeps status in step with progress: a ready item
// is checked in, a partly done item is started. Empty progress leaves the
// status alone.
func applyProgressCoupling(w domain.WorkItem) domain.WorkItem {
	switch w.Progress {
	case domain.ProgressEmpty, "":
	case domain.ProgressReady:
		w.Status = domain.StatusCheckedIn
	default:
		w.Status = domain.StatusStarted
	}
	return w
}

// deriveDue fills DueDate from BegDate (or today) plus EstDays when the
// item has none. A caller-supplied due date is kept as is.
func (e Engine) deriveDue(w domain.WorkItem) (domain.WorkItem, error) {
	if w.DueDate != "" {
		return w, nil
	}
	beg := e.now().UTC()
	if w.BegDate != "" {
		t, err := domain.ParseDate("beg_date", w.BegDate)
		if err != nil {
			return w, err
		}
		beg = t
	}
	w.DueDate = domain.FormatDate(domain.DeriveDueDate(beg, w.EstDays))
	return w, nil
}

// itemView resolves the display fields plugins render with.
func (e Engine) itemView(ctx context.Context, w domain.WorkItem) domain.ItemView {
	v := domain.ItemView{Item: w, AssigneeName: w.AssigneeID}
	if p, err := e.Repo.GetProject(ctx, w.ProjectSlug); err == nil {
		v.ProjectName = p.Name
		v.ProjectPin = p.Pin
	}
	if w.AssigneeID != "" {
		if a, err := e.Repo.GetAccount(ctx, w.AssigneeID); err == nil && a.Name != "" {
			v.AssigneeName = a.Name
		}
	}
	if w.OwnerID != "" {
		if a, err := e.Repo.GetAccount(ctx, w.OwnerID); err == nil {
			v.OwnerEmail = a.Email
		}
	}
	return v
}

func (e Engine) resolveProject(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", domain.ValidationError{Field: "project_slug", Reason: "required"}
	}
	s, err := e.Repo.ResolveProjectSlug(ctx, ref)
	if err != nil {
		return "", translate("project", ref, err)
	}
	return s, nil
}

// prepareNew applies defaults and validates a new item.
func (e Engine) prepareNew(ctx context.Context, w domain.WorkItem, actor string) (domain.WorkItem, error) {
	if w.OwnerID == "" {
		w.OwnerID = actor
	}
	if w.AssigneeID == "" {
		w.AssigneeID = actor
	}
	explicitStatus := w.Status != ""
	w = domain.ApplyItemDefaults(w)
	if !explicitStatus {
		w = applyProgressCoupling(w)
	}
	if err := domain.ValidateItem(w); err != nil {
		return w, err
	}
	project, err := e.resolveProject(ctx, w.ProjectSlug)
	if err != nil {
		return w, err
	}
	w.ProjectSlug = project
	return w, nil
}

// CreateItem runs the full create pipeline and returns the stored item.
func (e Engine) CreateItem(ctx context.Context, w domain.WorkItem, actor string) (_ domain.WorkItem, err error) {
	actor = actorOrDefault(actor)
	ctx, span := e.span(ctx, "create_item", attribute.String("project", w.ProjectSlug))
	defer func() { endSpan(span, err) }()

	w, err = e.prepareNew(ctx, w, actor)
	if err != nil {
		return domain.WorkItem{}, err
	}
	reg := e.registry()

	v, err := reg.BeforeCreate(ctx, e.itemView(ctx, w))
	if err != nil {
		return domain.WorkItem{}, err
	}
	w = v.Item
	if w, err = e.prepareNew(ctx, w, actor); err != nil {
		return domain.WorkItem{}, err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := e.stamp()
	w.CreatedAt, w.UpdatedAt = now, now
	if w, err = e.deriveDue(w); err != nil {
		return domain.WorkItem{}, err
	}

	stored, err := e.insertWithSlug(ctx, w, actor)
	if err != nil {
		return domain.WorkItem{}, err
	}
	e.log.Info().Str("item_id", stored.ID).Str("slug", stored.Slug).Msg("item created")

	v = e.itemView(ctx, stored)
	// Whatever an after-hook returns is written back before the next hook
	// runs. Identity fields stay pinned to the inserted row.
	v, err = reg.AfterCreate(ctx, v, func(ctx context.Context, v domain.ItemView) (domain.ItemView, error) {
		next := v.Item.Clone()
		next.ID, next.Slug, next.CreatedAt = stored.ID, stored.Slug, stored.CreatedAt
		if len(diffItems(stored, next)) == 0 && domain.MetaEqual(next.PluginMeta, stored.PluginMeta) {
			return v, nil
		}
		if err := domain.ValidateItem(next); err != nil {
			return v, err
		}
		next.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateItem(ctx, nil, next); err != nil {
			return v, translate("item", stored.ID, err)
		}
		stored = next
		v.Item = next.Clone()
		return v, nil
	})
	if err != nil {
		return stored, err
	}
	return e.GetItem(ctx, stored.ID)
}

// insertWithSlug allocates a slug and inserts w, drawing a fresh slug when
// the insert loses a race for the one it checked. A caller-supplied slug is
// never replaced.
func (e Engine) insertWithSlug(ctx context.Context, w domain.WorkItem, actor string) (domain.WorkItem, error) {
	given := w.Slug != ""
	attempts := e.Slugs.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		s, err := e.Slugs.Allocate(ctx, w)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return w, domain.NotFoundError{Kind: "project", Key: w.ProjectSlug}
			}
			return w, err
		}
		w.Slug = s
		err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
			if err := e.ensureAccounts(ctx, tx, actor, w.OwnerID, w.AssigneeID); err != nil {
				return err
			}
			if err := e.Repo.InsertItem(ctx, tx, w); err != nil {
				return err
			}
			return e.Events.Item(ctx, tx, events.ItemCreated, w, actor)
		})
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return w, err
		}
		if given {
			return w, domain.ConflictError{Kind: "item", Key: w.Slug, Reason: "slug or id already in use"}
		}
		e.log.Debug().Str("slug", w.Slug).Msg("slug taken on insert, reallocating")
		w.Slug = ""
	}
	return w, domain.ConflictError{Kind: "slug", Key: w.ProjectSlug, Reason: fmt.Sprintf("no free slug after %d inserts", attempts)}
}

// UpdateItem merges patch into the item, runs the update hooks and stores
// the result with one audit row per changed field.
func (e Engine) UpdateItem(ctx context.Context, id string, patch ItemPatch, actor string) (_ domain.WorkItem, err error) {
	actor = actorOrDefault(actor)
	ctx, span := e.span(ctx, "update_item", attribute.String("item_id", id))
	defer func() { endSpan(span, err) }()

	old, err := e.Repo.GetItem(ctx, id)
	if err != nil {
		return domain.WorkItem{}, translate("item", id, err)
	}
	w := patch.apply(old.Clone())
	if w, err = e.prepareUpdate(ctx, old, w, patch, actor); err != nil {
		return domain.WorkItem{}, err
	}

	reg := e.registry()
	oldView := e.itemView(ctx, old)
	v, err := reg.BeforeUpdate(ctx, id, e.itemView(ctx, w), oldView)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if w, err = e.prepareUpdate(ctx, old, v.Item, patch, actor); err != nil {
		return domain.WorkItem{}, err
	}
	w.UpdatedAt = e.stamp()

	changes := diffItems(old, w)
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureAccounts(ctx, tx, actor, w.OwnerID, w.AssigneeID); err != nil {
			return err
		}
		if err := e.Repo.UpdateItem(ctx, tx, w); err != nil {
			return translate("item", id, err)
		}
		fields := make([]string, 0, len(changes))
		for _, c := range changes {
			fields = append(fields, c.Field)
			if err := e.Repo.InsertAudit(ctx, tx, domain.Audit{
				ItemID: w.ID, Field: c.Field, OldValue: c.Old, NewValue: c.New, ActorID: actor, CreatedAt: w.UpdatedAt,
			}); err != nil {
				return err
			}
		}
		return e.Events.Item(ctx, tx, events.ItemUpdated, w, actor, fields...)
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	e.log.Info().Str("item_id", w.ID).Str("slug", w.Slug).Int("changes", len(changes)).Msg("item updated")

	v, err = reg.AfterUpdate(ctx, e.itemView(ctx, w), oldView)
	if err != nil {
		return w, err
	}
	if !domain.MetaEqual(v.Item.PluginMeta, w.PluginMeta) {
		if err := e.Repo.UpdateItemMeta(ctx, nil, w.ID, v.Item.PluginMeta, e.stamp()); err != nil {
			return w, translate("item", w.ID, err)
		}
	}
	return e.GetItem(ctx, w.ID)
}

// prepareUpdate pins the identity fields of w to old, fills defaults and
// validates.
func (e Engine) prepareUpdate(ctx context.Context, old, w domain.WorkItem, patch ItemPatch, actor string) (domain.WorkItem, error) {
	w.ID = old.ID
	w.Slug = old.Slug
	w.CreatedAt = old.CreatedAt
	if w.OwnerID == "" {
		w.OwnerID = actor
	}
	if w.AssigneeID == "" {
		w.AssigneeID = actor
	}
	if w.Progress != old.Progress && patch.Status == nil {
		w = applyProgressCoupling(w)
	}
	if err := domain.ValidateItem(w); err != nil {
		return w, err
	}
	if w.ProjectSlug != old.ProjectSlug {
		project, err := e.resolveProject(ctx, w.ProjectSlug)
		if err != nil {
			return w, err
		}
		w.ProjectSlug = project
	}
	return e.deriveDue(w)
}

// DeleteItem removes an item and returns it as it was.
func (e Engine) DeleteItem(ctx context.Context, id, actor string) (_ domain.WorkItem, err error) {
	actor = actorOrDefault(actor)
	ctx, span := e.span(ctx, "delete_item", attribute.String("item_id", id))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(id) == "" {
		return domain.WorkItem{}, domain.ValidationError{Field: "id", Reason: "required"}
	}
	reg := e.registry()
	target, err := reg.BeforeDelete(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}

	var deleted domain.WorkItem
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = e.Repo.DeleteItem(ctx, tx, target)
		if err != nil {
			return translate("item", target, err)
		}
		if err := e.ensureAccounts(ctx, tx, actor); err != nil {
			return err
		}
		return e.Events.Item(ctx, tx, events.ItemDeleted, deleted, actor)
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	e.log.Info().Str("item_id", deleted.ID).Str("slug", deleted.Slug).Msg("item deleted")

	v, err := reg.AfterDelete(ctx, e.itemView(ctx, deleted))
	if err != nil {
		return deleted, err
	}
	return v.Item, nil
}

func (e Engine) GetItem(ctx context.Context, id string) (domain.WorkItem, error) {
	w, err := e.Repo.GetItem(ctx, id)
	return w, translate("item", id, err)
}

func (e Engine) GetItemBySlug(ctx context.Context, s string) (domain.WorkItem, error) {
	w, err := e.Repo.GetItemBySlug(ctx, s)
	return w, translate("item", s, err)
}

// ItemView returns the item with the display fields plugins see.
func (e Engine) ItemView(ctx context.Context, id string) (domain.ItemView, error) {
	w, err := e.GetItem(ctx, id)
	if err != nil {
		return domain.ItemView{}, err
	}
	return e.itemView(ctx, w), nil
}

func (e Engine) ListItems(ctx context.Context, f domain.ItemFilters) ([]domain.WorkItem, error) {
	if f.ProjectSlug != "" {
		s, err := e.resolveProject(ctx, f.ProjectSlug)
		if err != nil {
			return nil, err
		}
		f.ProjectSlug = s
	}
	return e.Repo.ListItems(ctx, f)
}

func (e Engine) CountItems(ctx context.Context, f domain.ItemFilters) (int, error) {
	if f.ProjectSlug != "" {
		s, err := e.resolveProject(ctx, f.ProjectSlug)
		if err != nil {
			return 0, err
		}
		f.ProjectSlug = s
	}
	return e.Repo.CountItems(ctx, f)
}

func (e Engine) ItemAudits(ctx context.Context, id string) ([]domain.Audit, error) {
	if _, err := e.GetItem(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListAudits(ctx, id)
}

// ParseProjectType splits a "{project}_{type}" listing key. Project slugs
// may contain underscores, so the split is on the last one.
func ParseProjectType(key string) (string, domain.ItemType, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return "", "", domain.ValidationError{Field: "project_type", Reason: "expected {project}_{type}"}
	}
	t, err := domain.ItemTypes.Parse(key[i+1:])
	if err != nil {
		return "", "", domain.ValidationError{Field: "project_type", Reason: err.Error()}
	}
	return key[:i], t, nil
}

// StepAxis moves one axis of the item with slug s by delta, holding at the
// ends.
func (e Engine) StepAxis(ctx context.Context, s string, axis domain.AxisName, delta int, actor string) (domain.WorkItem, error) {
	return e.moveAxis(ctx, s, axis, delta, false, actor)
}

// CircleAxis advances one axis by one position, wrapping past the end.
func (e Engine) CircleAxis(ctx context.Context, s string, axis domain.AxisName, actor string) (domain.WorkItem, error) {
	return e.moveAxis(ctx, s, axis, 1, true, actor)
}

func (e Engine) moveAxis(ctx context.Context, s string, axis domain.AxisName, delta int, circle bool, actor string) (domain.WorkItem, error) {
	w, err := e.GetItemBySlug(ctx, s)
	if err != nil {
		return domain.WorkItem{}, err
	}
	moved, err := domain.MoveAxis(w, axis, delta, circle)
	if err != nil {
		return domain.WorkItem{}, err
	}
	var patch ItemPatch
	switch axis {
	case domain.AxisProgress:
		patch.Progress = &moved.Progress
	case domain.AxisPriority:
		patch.Priority = &moved.Priority
	case domain.AxisStatus:
		patch.Status = &moved.Status
	case domain.AxisType:
		patch.Type = &moved.Type
	}
	return e.UpdateItem(ctx, w.ID, patch, actor)
}

// SwitchType moves the item with slug s to another item type.
func (e Engine) SwitchType(ctx context.Context, s string, t domain.ItemType, actor string) (domain.WorkItem, error) {
	if !domain.ItemTypes.Valid(t) {
		return domain.WorkItem{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown value %q", t)}
	}
	w, err := e.GetItemBySlug(ctx, s)
	if err != nil {
		return domain.WorkItem{}, err
	}
	return e.UpdateItem(ctx, w.ID, ItemPatch{Type: &t}, actor)
}

type fieldChange struct {
	Field    string
	Old, New string
}

// diffItems lists the scalar fields that differ between a and b.
func diffItems(a, b domain.WorkItem) []fieldChange {
	var out []fieldChange
	add := func(field, x, y string) {
		if x != y {
			out = append(out, fieldChange{Field: field, Old: x, New: y})
		}
	}
	add("title", a.Title, b.Title)
	add("description", a.Description, b.Description)
	add("project_slug", a.ProjectSlug, b.ProjectSlug)
	add("sprint_number", strconv.Itoa(a.SprintNumber), strconv.Itoa(b.SprintNumber))
	add("progress", string(a.Progress), string(b.Progress))
	add("priority", string(a.Priority), string(b.Priority))
	add("status", string(a.Status), string(b.Status))
	add("type", string(a.Type), string(b.Type))
	add("category", string(a.Category), string(b.Category))
	add("order", strconv.Itoa(a.Order), strconv.Itoa(b.Order))
	add("points", strconv.Itoa(a.Points), strconv.Itoa(b.Points))
	add("est_days", strconv.FormatFloat(a.EstDays, 'f', -1, 64), strconv.FormatFloat(b.EstDays, 'f', -1, 64))
	add("beg_date", a.BegDate, b.BegDate)
	add("end_date", a.EndDate, b.EndDate)
	add("due_date", a.DueDate, b.DueDate)
	add("labels", strings.Join(a.Labels, ","), strings.Join(b.Labels, ","))
	add("owner_id", a.OwnerID, b.OwnerID)
	add("assignee_id", a.AssigneeID, b.AssigneeID)
	return out
}
