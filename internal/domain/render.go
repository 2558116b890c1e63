package domain

import "time"

// RenderKind enumerates the supported render pipelines.
type RenderKind string

const (
	// RenderKindTransform is the single-step pipeline: one generation call
	// turns the input collage into a finished visualization.
	RenderKindTransform RenderKind = "transform"
	// RenderKindComposite is the two-step pipeline: strip the furniture out
	// of a room photo, then compose the styled collage into the empty room.
	RenderKindComposite RenderKind = "composite"
)

// CreditCost returns how many credits a render of this kind consumes.
// The composite pipeline makes two generation calls and is billed double.
func (k RenderKind) CreditCost() int {
	if k == RenderKindComposite {
		return 2
	}
	return 1
}

// Valid reports whether the kind is one this service knows how to run.
func (k RenderKind) Valid() bool {
	return k == RenderKindTransform || k == RenderKindComposite
}

// RenderStatus enumerates render job lifecycle states.
type RenderStatus string

const (
	RenderStatusPending    RenderStatus = "pending"
	RenderStatusProcessing RenderStatus = "processing"
	RenderStatusUploading  RenderStatus = "uploading"
	RenderStatusCompleted  RenderStatus = "completed"
	RenderStatusFailed     RenderStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s RenderStatus) Terminal() bool {
	return s == RenderStatusCompleted || s == RenderStatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// step of the state machine. All transitions are monotonic; terminal
// states accept nothing.
func (s RenderStatus) CanTransition(next RenderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case RenderStatusProcessing:
		return s == RenderStatusPending
	case RenderStatusUploading:
		return s == RenderStatusProcessing
	case RenderStatusCompleted:
		return s == RenderStatusUploading
	case RenderStatusFailed:
		return true
	default:
		return false
	}
}

// RenderJob is the central entity: one user request to produce a
// generated interior visualization. The database row is the single
// source of truth for its state; the queue only carries the id.
type RenderJob struct {
	ID                string
	AccountID         int64
	UserID            int64
	Title             string
	RoomType          string
	Lighting          string
	Kind              RenderKind
	Status            RenderStatus
	InputImageURL     string
	RoomPhotoURL      string
	EmptyRoomImageURL string
	ResultImageURL    string
	Prompt            string
	ErrorMessage      string
	CreditDeducted    bool
	CreatedAt         time.Time
	CompletedAt       *time.Time
}
