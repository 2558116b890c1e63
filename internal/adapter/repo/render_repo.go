package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderspace/internal/domain"
)

const renderJobColumns = `id, account_id, user_id, title, room_type, lighting, kind, status,
input_image_url, room_photo_url, empty_room_image_url, result_image_url,
prompt, error_message, credit_deducted, created_at, completed_at`

// RenderJobRepoPG implements domain.RenderJobRepository on PostgreSQL.
type RenderJobRepoPG struct {
	pool *pgxpool.Pool
}

// NewRenderJobRepo creates a render job repository backed by PostgreSQL.
func NewRenderJobRepo(pool *pgxpool.Pool) *RenderJobRepoPG {
	return &RenderJobRepoPG{pool: pool}
}

// Create inserts a new job record in status pending.
func (r *RenderJobRepoPG) Create(ctx context.Context, job *domain.RenderJob) error {
	query := `
INSERT INTO render_jobs (id, account_id, user_id, title, room_type, lighting, kind, status, input_image_url, room_photo_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.AccountID,
		job.UserID,
		job.Title,
		job.RoomType,
		job.Lighting,
		job.Kind,
		domain.RenderStatusPending,
		job.InputImageURL,
		nullableString(job.RoomPhotoURL),
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *RenderJobRepoPG) GetByID(ctx context.Context, id string) (*domain.RenderJob, error) {
	query := `
SELECT ` + renderJobColumns + `
FROM render_jobs
WHERE id = $1;
`
	return scanRenderJob(r.pool.QueryRow(ctx, query, id))
}

// Transition applies a conditional status update: it only writes when the
// stored status still equals from, and reports whether it won. Losing the
// race is not an error.
func (r *RenderJobRepoPG) Transition(ctx context.Context, id string, from, to domain.RenderStatus, fields domain.TransitionFields) (bool, error) {
	query := `
UPDATE render_jobs
SET status = $3,
    result_image_url = COALESCE($4, result_image_url),
    prompt = COALESCE($5, prompt),
    error_message = COALESCE($6, error_message),
    completed_at = CASE WHEN $7 THEN NOW() ELSE completed_at END
WHERE id = $1 AND status = $2;
`
	tag, err := r.pool.Exec(ctx, query, id, from, to,
		fields.ResultImageURL,
		fields.Prompt,
		fields.ErrorMessage,
		fields.CompletedNow,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetEmptyRoomImage stores the intermediate empty-room image produced by
// the composite pipeline. Best-effort; callers log and continue on error.
func (r *RenderJobRepoPG) SetEmptyRoomImage(ctx context.Context, id, url string) error {
	query := `
UPDATE render_jobs
SET empty_room_image_url = $2
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, url)
	return err
}

// SetCompletionNote patches bookkeeping state onto an already completed
// job: accumulated non-critical error text and whether the credit debit
// landed. It never touches status.
func (r *RenderJobRepoPG) SetCompletionNote(ctx context.Context, id, errMsg string, creditDeducted bool) error {
	query := `
UPDATE render_jobs
SET error_message = NULLIF($2, ''),
    credit_deducted = $3
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, errMsg, creditDeducted)
	return err
}

// ActiveForUser returns the caller's most recent non-terminal job, or
// ErrNotFound when nothing is in flight.
func (r *RenderJobRepoPG) ActiveForUser(ctx context.Context, userID int64) (*domain.RenderJob, error) {
	query := `
SELECT ` + renderJobColumns + `
FROM render_jobs
WHERE user_id = $1 AND status IN ($2, $3, $4)
ORDER BY created_at DESC
LIMIT 1;
`
	return scanRenderJob(r.pool.QueryRow(ctx, query, userID,
		domain.RenderStatusPending, domain.RenderStatusProcessing, domain.RenderStatusUploading))
}

// ListForAccount returns the account's jobs, newest first.
func (r *RenderJobRepoPG) ListForAccount(ctx context.Context, accountID int64, limit int) ([]domain.RenderJob, error) {
	query := `
SELECT ` + renderJobColumns + `
FROM render_jobs
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.RenderJob
	for rows.Next() {
		job, err := scanRenderJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanRenderJob(row pgx.Row) (*domain.RenderJob, error) {
	var job domain.RenderJob
	var roomPhoto, emptyRoom, result, prompt, errMsg *string
	if err := row.Scan(
		&job.ID,
		&job.AccountID,
		&job.UserID,
		&job.Title,
		&job.RoomType,
		&job.Lighting,
		&job.Kind,
		&job.Status,
		&job.InputImageURL,
		&roomPhoto,
		&emptyRoom,
		&result,
		&prompt,
		&errMsg,
		&job.CreditDeducted,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.RoomPhotoURL = deref(roomPhoto)
	job.EmptyRoomImageURL = deref(emptyRoom)
	job.ResultImageURL = deref(result)
	job.Prompt = deref(prompt)
	job.ErrorMessage = deref(errMsg)
	return &job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
