package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderspace/internal/domain"
)

// CreditRepoPG implements domain.CreditLedger on PostgreSQL. Every
// balance mutation is a guarded conditional update inside one
// transaction with its ledger row, so concurrent job completions cannot
// overdraw the account.
type CreditRepoPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepo creates a credit ledger backed by PostgreSQL.
func NewCreditRepo(pool *pgxpool.Pool) *CreditRepoPG {
	return &CreditRepoPG{pool: pool}
}

// Balance returns the account's current credit balance.
func (r *CreditRepoPG) Balance(ctx context.Context, accountID int64) (int, error) {
	query := `
SELECT credits
FROM accounts
WHERE id = $1;
`
	var balance int
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// DebitForJob decrements the account balance by amount and inserts the
// matching ledger entry atomically. The decrement carries its own
// credits >= amount guard; a read-then-write would race with other
// completing jobs on the same account.
func (r *CreditRepoPG) DebitForJob(ctx context.Context, job *domain.RenderJob, amount int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback(ctx)

	debit := `
UPDATE accounts
SET credits = credits - $2, updated_at = NOW()
WHERE id = $1 AND credits >= $2
RETURNING credits;
`
	var balanceAfter int
	if err := tx.QueryRow(ctx, debit, job.AccountID, amount).Scan(&balanceAfter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("debit account: %w", err)
	}

	record := `
INSERT INTO credit_transactions (account_id, user_id, amount, description, balance_after, render_job_id)
VALUES ($1, $2, $3, $4, $5, $6);
`
	description := fmt.Sprintf("Credit used for render: %s", job.Title)
	if _, err := tx.Exec(ctx, record, job.AccountID, job.UserID, -amount, description, balanceAfter, job.ID); err != nil {
		return 0, fmt.Errorf("record debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit debit: %w", err)
	}
	return balanceAfter, nil
}

// AddCredits increments the balance and records a purchase entry. The
// unique constraint on payment_ref makes provider webhook retries
// idempotent: a second delivery fails with ErrDuplicatePayment instead
// of crediting twice.
func (r *CreditRepoPG) AddCredits(ctx context.Context, accountID, userID int64, amount int, description, paymentRef string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin credit: %w", err)
	}
	defer tx.Rollback(ctx)

	credit := `
UPDATE accounts
SET credits = credits + $2, updated_at = NOW()
WHERE id = $1
RETURNING credits;
`
	var balanceAfter int
	if err := tx.QueryRow(ctx, credit, accountID, amount).Scan(&balanceAfter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("credit account: %w", err)
	}

	record := `
INSERT INTO credit_transactions (account_id, user_id, amount, description, balance_after, payment_ref)
VALUES ($1, $2, $3, $4, $5, $6);
`
	if _, err := tx.Exec(ctx, record, accountID, userID, amount, description, nullableString(paymentRef)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, domain.ErrDuplicatePayment
		}
		return 0, fmt.Errorf("record credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}
	return balanceAfter, nil
}

// ListTransactions returns the account's ledger entries, newest first.
func (r *CreditRepoPG) ListTransactions(ctx context.Context, accountID int64, limit int) ([]domain.CreditTransaction, error) {
	query := `
SELECT id, account_id, user_id, amount, description, balance_after, payment_ref, render_job_id, created_at
FROM credit_transactions
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CreditTransaction
	for rows.Next() {
		var entry domain.CreditTransaction
		var paymentRef, jobID *string
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.UserID,
			&entry.Amount,
			&entry.Description,
			&entry.BalanceAfter,
			&paymentRef,
			&jobID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.PaymentRef = deref(paymentRef)
		entry.RenderJobID = deref(jobID)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
