package image

import (
	"strings"
	"testing"
)

func TestPromptsMentionRoomAndLighting(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   []string
	}{
		{"transform", transformPrompt("living room", "warm"), []string{"living room", "warm", "photorealistic"}},
		{"remove background", removeBackgroundPrompt("bedroom"), []string{"bedroom", "empty room"}},
		{"compose", composePrompt("kitchen", "natural"), []string{"kitchen", "natural", "reference collage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				if !strings.Contains(tt.prompt, want) {
					t.Errorf("prompt missing %q: %s", want, tt.prompt)
				}
			}
		})
	}
}
