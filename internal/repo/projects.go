package repo

import (
	"context"
	"database/sql"

	"sprintsync/internal/domain"
)

const projectColumns = `id,slug,name,description,pin,COALESCE(owner_id,''),COALESCE(start_date,''),COALESCE(end_date,''),sprint_weeks,plugin_meta,created_at,updated_at`

func scanProject(s rowScanner) (domain.Project, error) {
	var (
		p    domain.Project
		meta string
	)
	err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Pin, &p.OwnerID, &p.StartDate, &p.EndDate, &p.SprintWeeks, &meta, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.PluginMeta, err = decodeMeta(meta)
	return p, err
}

func (r Repo) GetProject(ctx context.Context, slug string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, slug)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, slug string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE slug=?`, slug))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY pin DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	meta, err := encodeMeta(p.PluginMeta)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,slug,name,description,pin,owner_id,start_date,end_date,sprint_weeks,plugin_meta,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Slug, p.Name, p.Description, p.Pin, nullable(p.OwnerID), nullable(p.StartDate), nullable(p.EndDate), p.SprintWeeks, meta, p.CreatedAt, p.UpdatedAt)
	return mapWriteErr(err)
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	meta, err := encodeMeta(p.PluginMeta)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET name=?, description=?, pin=?, owner_id=?, start_date=?, end_date=?, sprint_weeks=?, plugin_meta=?, updated_at=? WHERE id=?`,
		p.Name, p.Description, p.Pin, nullable(p.OwnerID), nullable(p.StartDate), nullable(p.EndDate), p.SprintWeeks, meta, p.UpdatedAt, p.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, slug string) (domain.Project, error) {
	p, err := r.GetProjectTx(ctx, tx, slug)
	if err != nil {
		return p, err
	}
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, p.ID); err != nil {
		return p, err
	}
	return p, nil
}

// ResolveProjectSlug maps a project reference (slug or id) to its slug.
func (r Repo) ResolveProjectSlug(ctx context.Context, ref string) (string, error) {
	var slug string
	err := r.DB.QueryRowContext(ctx, `SELECT slug FROM projects WHERE slug=? OR id=? LIMIT 1`, ref, ref).Scan(&slug)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return slug, err
}
