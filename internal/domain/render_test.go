package domain

import "testing"

func TestRenderStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from RenderStatus
		to   RenderStatus
		want bool
	}{
		{"pending to processing", RenderStatusPending, RenderStatusProcessing, true},
		{"processing to uploading", RenderStatusProcessing, RenderStatusUploading, true},
		{"uploading to completed", RenderStatusUploading, RenderStatusCompleted, true},
		{"pending to failed", RenderStatusPending, RenderStatusFailed, true},
		{"processing to failed", RenderStatusProcessing, RenderStatusFailed, true},
		{"uploading to failed", RenderStatusUploading, RenderStatusFailed, true},
		{"pending skips to uploading", RenderStatusPending, RenderStatusUploading, false},
		{"pending skips to completed", RenderStatusPending, RenderStatusCompleted, false},
		{"processing skips to completed", RenderStatusProcessing, RenderStatusCompleted, false},
		{"completed is final", RenderStatusCompleted, RenderStatusFailed, false},
		{"failed is final", RenderStatusFailed, RenderStatusProcessing, false},
		{"no backwards step", RenderStatusUploading, RenderStatusProcessing, false},
		{"no self transition", RenderStatusProcessing, RenderStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRenderStatusTerminal(t *testing.T) {
	terminal := map[RenderStatus]bool{
		RenderStatusPending:    false,
		RenderStatusProcessing: false,
		RenderStatusUploading:  false,
		RenderStatusCompleted:  true,
		RenderStatusFailed:     true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestRenderKindCreditCost(t *testing.T) {
	if got := RenderKindTransform.CreditCost(); got != 1 {
		t.Fatalf("transform cost = %d, want 1", got)
	}
	if got := RenderKindComposite.CreditCost(); got != 2 {
		t.Fatalf("composite cost = %d, want 2", got)
	}
}

func TestRenderKindValid(t *testing.T) {
	if !RenderKindTransform.Valid() || !RenderKindComposite.Valid() {
		t.Fatal("expected known kinds to be valid")
	}
	if RenderKind("upscale").Valid() {
		t.Fatal("expected unknown kind to be invalid")
	}
}
