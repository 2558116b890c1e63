package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"renderspace/internal/domain"
)

// ActivityRepoPG implements domain.ActivityRepository on PostgreSQL.
type ActivityRepoPG struct {
	pool *pgxpool.Pool
}

// NewActivityRepo creates an activity log repository backed by PostgreSQL.
func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepoPG {
	return &ActivityRepoPG{pool: pool}
}

// Log appends one audit record.
func (r *ActivityRepoPG) Log(ctx context.Context, entry *domain.ActivityLog) error {
	query := `
INSERT INTO activity_logs (account_id, user_id, action, ip_address)
VALUES ($1, $2, $3, $4);
`
	_, err := r.pool.Exec(ctx, query, entry.AccountID, entry.UserID, entry.Action, entry.IPAddress)
	return err
}
