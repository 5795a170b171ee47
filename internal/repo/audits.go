package repo

import (
	"context"
	"database/sql"

	"sprintsync/internal/domain"
)

func (r Repo) InsertAudit(ctx context.Context, tx *sql.Tx, a domain.Audit) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO item_audits(item_id,field_name,old_value,new_value,actor_id,created_at) VALUES (?,?,?,?,?,?)`,
		a.ItemID, a.Field, a.OldValue, a.NewValue, a.ActorID, a.CreatedAt)
	return err
}

// ListAudits returns an item's audit trail oldest first.
func (r Repo) ListAudits(ctx context.Context, itemID string) ([]domain.Audit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_id,field_name,old_value,new_value,actor_id,created_at FROM item_audits WHERE item_id=? ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Audit
	for rows.Next() {
		var a domain.Audit
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Field, &a.OldValue, &a.NewValue, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
