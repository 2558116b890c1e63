package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"renderspace/internal/domain"
)

type createRenderRequest struct {
	Title         string `json:"title"`
	RoomType      string `json:"roomType"`
	Lighting      string `json:"lighting"`
	InputImageURL string `json:"inputImageUrl"`
}

type placeCollageRequest struct {
	Title           string `json:"title"`
	RoomType        string `json:"roomType"`
	Lighting        string `json:"lighting"`
	RoomPhotoURL    string `json:"roomPhotoUrl"`
	CollageImageURL string `json:"collageImageUrl"`
}

type renderJobResponse struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	RoomType          string     `json:"roomType"`
	Lighting          string     `json:"lighting"`
	Kind              string     `json:"kind"`
	Status            string     `json:"status"`
	InputImageURL     string     `json:"inputImageUrl"`
	RoomPhotoURL      string     `json:"roomPhotoUrl,omitempty"`
	EmptyRoomImageURL string     `json:"emptyRoomImageUrl,omitempty"`
	ResultImageURL    string     `json:"resultImageUrl,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	CreditDeducted    bool       `json:"creditDeducted"`
	CreatedAt         time.Time  `json:"createdAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

func toRenderJobResponse(job *domain.RenderJob) renderJobResponse {
	return renderJobResponse{
		ID:                job.ID,
		Title:             job.Title,
		RoomType:          job.RoomType,
		Lighting:          job.Lighting,
		Kind:              string(job.Kind),
		Status:            string(job.Status),
		InputImageURL:     job.InputImageURL,
		RoomPhotoURL:      job.RoomPhotoURL,
		EmptyRoomImageURL: job.EmptyRoomImageURL,
		ResultImageURL:    job.ResultImageURL,
		ErrorMessage:      job.ErrorMessage,
		CreditDeducted:    job.CreditDeducted,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
	}
}

// CreateRender admits a single-step render job: the input collage is
// transformed into the final visualization in one generation call.
func (a *App) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req createRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if missing := firstMissing(map[string]string{
		"title":         req.Title,
		"roomType":      req.RoomType,
		"lighting":      req.Lighting,
		"inputImageUrl": req.InputImageURL,
	}); missing != "" {
		a.error(w, http.StatusBadRequest, "bad_request", missing+" is required")
		return
	}

	a.admitRender(w, r, &domain.RenderJob{
		Title:         req.Title,
		RoomType:      req.RoomType,
		Lighting:      req.Lighting,
		Kind:          domain.RenderKindTransform,
		InputImageURL: req.InputImageURL,
	})
}

// PlaceCollage admits a two-step render job: the furniture is removed
// from the room photo, then the collage is composed into the empty room.
func (a *App) PlaceCollage(w http.ResponseWriter, r *http.Request) {
	var req placeCollageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if missing := firstMissing(map[string]string{
		"title":           req.Title,
		"roomType":        req.RoomType,
		"lighting":        req.Lighting,
		"roomPhotoUrl":    req.RoomPhotoURL,
		"collageImageUrl": req.CollageImageURL,
	}); missing != "" {
		a.error(w, http.StatusBadRequest, "bad_request", missing+" is required")
		return
	}

	a.admitRender(w, r, &domain.RenderJob{
		Title:         req.Title,
		RoomType:      req.RoomType,
		Lighting:      req.Lighting,
		Kind:          domain.RenderKindComposite,
		InputImageURL: req.CollageImageURL,
		RoomPhotoURL:  req.RoomPhotoURL,
	})
}

// admitRender runs the shared admission path: balance check, durable
// create, audit log, enqueue. The balance check here only gates
// admission; the authoritative guarded debit happens in the worker after
// the render succeeds.
func (a *App) admitRender(w http.ResponseWriter, r *http.Request, job *domain.RenderJob) {
	userID := a.currentUserID(r)
	accountID := a.currentAccountID(r)
	if userID == 0 || accountID == 0 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	cost := job.Kind.CreditCost()
	balance, err := a.Credits.Balance(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Int64("account_id", accountID).Msg("handlers: balance lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to check credits")
		return
	}
	if balance < cost {
		a.error(w, http.StatusForbidden, "insufficient_credits", "not enough credits for this render")
		return
	}

	job.ID = uuid.NewString()
	job.AccountID = accountID
	job.UserID = userID
	job.Status = domain.RenderStatusPending
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: create render job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create render")
		return
	}

	if err := a.Activity.Log(r.Context(), &domain.ActivityLog{
		AccountID: accountID,
		UserID:    userID,
		Action:    domain.ActivityCreateRender,
		IPAddress: clientIP(r),
	}); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("handlers: activity log failed")
	}

	if err := a.Queue.Enqueue(r.Context(), job.ID); err != nil {
		// The row already exists in pending; the timeout reaper will fail
		// it if nothing ever picks it up.
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue render")
		return
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"id":         job.ID,
		"status":     string(job.Status),
		"creditCost": cost,
	})
}

// RenderStatus returns the job's current state. The staleness check runs
// here, on read: a job stuck past the render deadline is failed before
// being served.
func (a *App) RenderStatus(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentAccountID(r)
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "render not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: load render failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load render")
		return
	}
	if job.AccountID != accountID {
		a.error(w, http.StatusForbidden, "forbidden", "render belongs to another account")
		return
	}

	job, err = a.Reaper.Check(r.Context(), job)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: staleness check failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load render")
		return
	}

	a.json(w, http.StatusOK, toRenderJobResponse(job))
}

// ActiveRender returns the caller's most recent non-terminal job, or
// null when nothing is in flight.
func (a *App) ActiveRender(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	job, err := a.Jobs.ActiveForUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, map[string]any{"active": nil})
			return
		}
		a.Logger.Error().Err(err).Int64("user_id", userID).Msg("handlers: active render lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load active render")
		return
	}

	job, err = a.Reaper.Check(r.Context(), job)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: staleness check failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load active render")
		return
	}
	if job.Status.Terminal() {
		// The reaper just settled it; nothing is active anymore.
		a.json(w, http.StatusOK, map[string]any{"active": nil})
		return
	}

	a.json(w, http.StatusOK, map[string]any{"active": toRenderJobResponse(job)})
}

// ListRenders returns the account's recent jobs, newest first.
func (a *App) ListRenders(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentAccountID(r)
	limit := queryInt(r, "limit", 20, 100)

	jobs, err := a.Jobs.ListForAccount(r.Context(), accountID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Int64("account_id", accountID).Msg("handlers: list renders failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list renders")
		return
	}

	items := make([]renderJobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toRenderJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func firstMissing(fields map[string]string) string {
	// Check in a fixed order so validation errors are deterministic.
	for _, name := range []string{"title", "roomType", "lighting", "inputImageUrl", "roomPhotoUrl", "collageImageUrl"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			return name
		}
	}
	return ""
}

func queryInt(r *http.Request, name string, fallback, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if i := strings.IndexByte(ip, ','); i >= 0 {
			ip = ip[:i]
		}
		return strings.TrimSpace(ip)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
