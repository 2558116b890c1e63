package domain

import "time"

// CreditTransaction is one entry in the account ledger. Amount is
// negative for consumption and positive for purchases. BalanceAfter is a
// snapshot taken at write time so the ledger can be audited without
// replaying it.
type CreditTransaction struct {
	ID           int64
	AccountID    int64
	UserID       int64
	Amount       int
	Description  string
	BalanceAfter int
	PaymentRef   string
	RenderJobID  string
	CreatedAt    time.Time
}
