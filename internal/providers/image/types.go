package image

import "context"

// Request describes a normalized single-step render request: turn the
// input collage into a finished visualization of the given room.
type Request struct {
	JobID         string
	InputImageURL string
	RoomType      string
	Lighting      string
}

// ComposeRequest describes the second half of the two-step pipeline:
// place the styled collage into an empty room produced by the removal
// step. EmptyRoom carries the in-memory bytes from that step so the
// pipeline can proceed even when persisting the intermediate failed.
type ComposeRequest struct {
	JobID           string
	EmptyRoom       []byte
	CollageImageURL string
	RoomType        string
	Lighting        string
}

// Result is one generated image plus the prompt that produced it.
type Result struct {
	Data   []byte
	Prompt string
}

// Generator is the contract implemented by generation providers.
type Generator interface {
	// Transform runs the single-step pipeline.
	Transform(ctx context.Context, req Request) (*Result, error)
	// RemoveBackground produces an empty-room version of a furnished
	// room photo.
	RemoveBackground(ctx context.Context, jobID, roomPhotoURL string) (*Result, error)
	// Compose renders the collage contents into the empty room.
	Compose(ctx context.Context, req ComposeRequest) (*Result, error)
}
