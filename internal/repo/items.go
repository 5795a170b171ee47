package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sprintsync/internal/domain"
)

const itemColumns = `id,slug,title,description,project_slug,sprint_number,progress,priority,status,type,category,item_order,points,est_days,
COALESCE(beg_date,''),COALESCE(end_date,''),COALESCE(due_date,''),labels,COALESCE(owner_id,''),COALESCE(assignee_id,''),plugin_meta,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(s rowScanner) (domain.WorkItem, error) {
	var (
		w      domain.WorkItem
		labels string
		meta   string
	)
	err := s.Scan(&w.ID, &w.Slug, &w.Title, &w.Description, &w.ProjectSlug, &w.SprintNumber, &w.Progress, &w.Priority, &w.Status, &w.Type, &w.Category,
		&w.Order, &w.Points, &w.EstDays, &w.BegDate, &w.EndDate, &w.DueDate, &labels, &w.OwnerID, &w.AssigneeID, &meta, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if w.Labels, err = decodeLabels(labels); err != nil {
		return w, err
	}
	if w.PluginMeta, err = decodeMeta(meta); err != nil {
		return w, err
	}
	return w, nil
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return r.GetItemTx(ctx, nil, id)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkItem, error) {
	return scanItem(r.q(tx).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id))
}

func (r Repo) GetItemBySlug(ctx context.Context, slug string) (domain.WorkItem, error) {
	return scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE slug=?`, slug))
}

// SlugExists reports whether any item already carries slug.
func (r Repo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM items WHERE slug=? LIMIT 1`, slug).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	labels, err := encodeLabels(w.Labels)
	if err != nil {
		return err
	}
	meta, err := encodeMeta(w.PluginMeta)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO items(id,slug,title,description,project_slug,sprint_number,progress,priority,status,type,category,item_order,points,est_days,beg_date,end_date,due_date,labels,owner_id,assignee_id,plugin_meta,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.Slug, w.Title, w.Description, w.ProjectSlug, w.SprintNumber, w.Progress, w.Priority, w.Status, w.Type, w.Category,
		w.Order, w.Points, w.EstDays, nullable(w.BegDate), nullable(w.EndDate), nullable(w.DueDate), labels,
		nullable(w.OwnerID), nullable(w.AssigneeID), meta, w.CreatedAt, w.UpdatedAt)
	return mapWriteErr(err)
}

// UpdateItem rewrites every mutable column. The slug is never touched.
func (r Repo) UpdateItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	labels, err := encodeLabels(w.Labels)
	if err != nil {
		return err
	}
	meta, err := encodeMeta(w.PluginMeta)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE items SET title=?, description=?, project_slug=?, sprint_number=?, progress=?, priority=?, status=?, type=?, category=?,
item_order=?, points=?, est_days=?, beg_date=?, end_date=?, due_date=?, labels=?, owner_id=?, assignee_id=?, plugin_meta=?, updated_at=? WHERE id=?`,
		w.Title, w.Description, w.ProjectSlug, w.SprintNumber, w.Progress, w.Priority, w.Status, w.Type, w.Category,
		w.Order, w.Points, w.EstDays, nullable(w.BegDate), nullable(w.EndDate), nullable(w.DueDate), labels,
		nullable(w.OwnerID), nullable(w.AssigneeID), meta, w.UpdatedAt, w.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateItemMeta stores only the plugin metadata blob.
func (r Repo) UpdateItemMeta(ctx context.Context, tx *sql.Tx, id string, meta map[string]string, updatedAt string) error {
	enc, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE items SET plugin_meta=?, updated_at=? WHERE id=?`, enc, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItem removes the row and returns it as it was.
func (r Repo) DeleteItem(ctx context.Context, tx *sql.Tx, id string) (domain.WorkItem, error) {
	w, err := r.GetItemTx(ctx, tx, id)
	if err != nil {
		return w, err
	}
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM items WHERE id=?`, id); err != nil {
		return w, err
	}
	return w, nil
}

func itemWhere(f domain.ItemFilters) (string, []any) {
	var clauses []string
	var args []any
	if f.ProjectSlug != "" {
		clauses = append(clauses, "project_slug=?")
		args = append(args, f.ProjectSlug)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.SprintNumber != nil {
		clauses = append(clauses, "sprint_number=?")
		args = append(args, *f.SprintNumber)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListItems(ctx context.Context, f domain.ItemFilters) ([]domain.WorkItem, error) {
	where, args := itemWhere(f)
	query := fmt.Sprintf(`SELECT %s FROM items %s ORDER BY sprint_number DESC, item_order ASC, created_at DESC, id DESC`, itemColumns, where)
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) CountItems(ctx context.Context, f domain.ItemFilters) (int, error) {
	where, args := itemWhere(f)
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items `+where, args...).Scan(&n)
	return n, err
}
