// Package handlers implements the HTTP API surface. Handlers validate
// and admit work; everything long-running happens in the worker, so
// every handler here returns quickly.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"renderspace/internal/domain"
	"renderspace/internal/gateway"
	"renderspace/internal/middleware"
	"renderspace/internal/pipeline"
)

// Enqueuer hands admitted jobs to the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

type App struct {
	Jobs     domain.RenderJobRepository
	Credits  domain.CreditLedger
	Activity domain.ActivityRepository
	Queue    Enqueuer
	Reaper   *pipeline.Reaper
	Gateway  *gateway.Gateway
	Logger   zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) int64 {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) currentAccountID(r *http.Request) int64 {
	return middleware.AccountIDFromContext(r.Context())
}
