package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"renderspace/internal/domain"
)

type creditTransactionResponse struct {
	ID           int64     `json:"id"`
	Amount       int       `json:"amount"`
	Description  string    `json:"description"`
	BalanceAfter int       `json:"balanceAfter"`
	RenderJobID  string    `json:"renderJobId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreditsSummary returns the account balance and its recent ledger
// entries.
func (a *App) CreditsSummary(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentAccountID(r)

	balance, err := a.Credits.Balance(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Int64("account_id", accountID).Msg("handlers: balance lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}

	txs, err := a.Credits.ListTransactions(r.Context(), accountID, queryInt(r, "limit", 10, 50))
	if err != nil {
		a.Logger.Error().Err(err).Int64("account_id", accountID).Msg("handlers: list transactions failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}

	items := make([]creditTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, creditTransactionResponse{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Description:  tx.Description,
			BalanceAfter: tx.BalanceAfter,
			RenderJobID:  tx.RenderJobID,
			CreatedAt:    tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance":      balance,
		"transactions": items,
	})
}

type purchaseRequest struct {
	Amount     int    `json:"amount"`
	PaymentRef string `json:"paymentRef"`
}

// PurchaseCredits grants credits for a settled payment. The payment
// reference makes the grant idempotent: replays of the same reference
// are rejected rather than credited twice.
func (a *App) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	accountID := a.currentAccountID(r)

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Amount <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be positive")
		return
	}
	if strings.TrimSpace(req.PaymentRef) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "paymentRef is required")
		return
	}

	description := "Credit purchase"
	balance, err := a.Credits.AddCredits(r.Context(), accountID, userID, req.Amount, description, req.PaymentRef)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) {
			a.error(w, http.StatusConflict, "duplicate_payment", "payment reference already processed")
			return
		}
		a.Logger.Error().Err(err).Int64("account_id", accountID).Msg("handlers: add credits failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to add credits")
		return
	}

	if err := a.Activity.Log(r.Context(), &domain.ActivityLog{
		AccountID: accountID,
		UserID:    userID,
		Action:    domain.ActivityPurchaseCredits,
		IPAddress: clientIP(r),
	}); err != nil {
		a.Logger.Warn().Err(err).Int64("account_id", accountID).Msg("handlers: activity log failed")
	}

	a.json(w, http.StatusOK, map[string]any{"balance": balance})
}
