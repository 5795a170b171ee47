package repo

import (
	"context"
	"database/sql"

	"sprintsync/internal/domain"
)

func (r Repo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM accounts WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// UpsertAccount inserts the account or refreshes name and email when given.
func (r Repo) UpsertAccount(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO accounts(id,name,email,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name=CASE WHEN excluded.name<>'' THEN excluded.name ELSE accounts.name END,
  email=CASE WHEN excluded.email<>'' THEN excluded.email ELSE accounts.email END`,
		a.ID, a.Name, a.Email, a.CreatedAt)
	return err
}

// EnsureAccount inserts a bare account row if id is unknown.
func (r Repo) EnsureAccount(ctx context.Context, tx *sql.Tx, id, createdAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO accounts(id,created_at) VALUES (?,?)`, id, createdAt)
	return err
}

func (r Repo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
