package domain

import "context"

// TransitionFields carries the columns a status transition may set
// alongside the status itself. Nil pointers leave the column untouched.
type TransitionFields struct {
	ResultImageURL *string
	Prompt         *string
	ErrorMessage   *string
	CompletedNow   bool
}

// RenderJobRepository defines persistence for render jobs. Transition is
// the only way status changes: it is a conditional update that applies
// only when the stored status still equals from, and reports whether it
// won. That guard is what lets the executor, the timeout reaper, and
// retried queue attempts run concurrently without a lock.
type RenderJobRepository interface {
	Create(ctx context.Context, job *RenderJob) error
	GetByID(ctx context.Context, id string) (*RenderJob, error)
	Transition(ctx context.Context, id string, from, to RenderStatus, fields TransitionFields) (bool, error)
	SetEmptyRoomImage(ctx context.Context, id, url string) error
	SetCompletionNote(ctx context.Context, id, errMsg string, creditDeducted bool) error
	ActiveForUser(ctx context.Context, userID int64) (*RenderJob, error)
	ListForAccount(ctx context.Context, accountID int64, limit int) ([]RenderJob, error)
}

// CreditLedger defines the account balance and its audit trail. The
// balance is only ever mutated through guarded conditional updates.
type CreditLedger interface {
	Balance(ctx context.Context, accountID int64) (int, error)
	// DebitForJob decrements the account balance by amount and records a
	// ledger entry referencing the job, atomically. It fails with
	// ErrInsufficientCredits when the guarded decrement matches no row.
	DebitForJob(ctx context.Context, job *RenderJob, amount int) (balanceAfter int, err error)
	// AddCredits increments the balance and records a purchase entry.
	// A repeated paymentRef fails with ErrDuplicatePayment.
	AddCredits(ctx context.Context, accountID, userID int64, amount int, description, paymentRef string) (balanceAfter int, err error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]CreditTransaction, error)
}

// ActivityRepository appends audit records. Best-effort callers treat
// failures as non-critical.
type ActivityRepository interface {
	Log(ctx context.Context, entry *ActivityLog) error
}
