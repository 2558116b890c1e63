package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreStoreAndURL(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	url, err := store.Store(context.Background(), "renders/job-1/result.png", []byte("png bytes"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if url != "http://localhost:8080/static/renders/job-1/result.png" {
		t.Errorf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "renders", "job-1", "result.png"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "png bytes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	for _, key := range []string{"", "..", "../escape.png", "a/../../escape.png"} {
		if _, err := store.Store(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("key %q: expected error", key)
		}
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"plain", "renders/a/result.png", "renders/a/result.png", false},
		{"leading slash stripped", "/renders/a.png", "renders/a.png", false},
		{"dot segment collapsed", "renders/./a.png", "renders/a.png", false},
		{"internal parent collapsed", "renders/sub/../a.png", "renders/a.png", false},
		{"escape rejected", "../a.png", "", true},
		{"empty rejected", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeKey(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey: %v", err)
			}
			if got != tt.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
