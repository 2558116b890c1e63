package domain

import "time"

// ActivityAction enumerates auditable account actions.
type ActivityAction string

const (
	ActivityCreateRender    ActivityAction = "CREATE_RENDER"
	ActivityCompleteRender  ActivityAction = "COMPLETE_RENDER"
	ActivityPurchaseCredits ActivityAction = "PURCHASE_CREDITS"
)

// ActivityLog records who did what on an account.
type ActivityLog struct {
	ID        int64
	AccountID int64
	UserID    int64
	Action    ActivityAction
	IPAddress string
	CreatedAt time.Time
}
