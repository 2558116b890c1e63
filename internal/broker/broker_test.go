package broker

import (
	"encoding/json"
	"testing"
)

func TestUserChannel(t *testing.T) {
	if got := UserChannel(42); got != "user-events:42" {
		t.Fatalf("UserChannel(42) = %q", got)
	}
}

func TestEventJSONShape(t *testing.T) {
	payload, err := json.Marshal(Event{
		Kind:           EventRenderCompleted,
		JobID:          "job-1",
		Title:          "Living room refresh",
		Status:         "completed",
		ResultImageURL: "https://cdn.test/result.png",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["event"] != "render.completed" {
		t.Errorf("event = %v", got["event"])
	}
	if got["jobId"] != "job-1" {
		t.Errorf("jobId = %v", got["jobId"])
	}
	if got["resultImageUrl"] != "https://cdn.test/result.png" {
		t.Errorf("resultImageUrl = %v", got["resultImageUrl"])
	}
	if _, present := got["errorMessage"]; present {
		t.Error("errorMessage must be omitted on success events")
	}
}

func TestFailedEventOmitsResultURL(t *testing.T) {
	payload, err := json.Marshal(Event{
		Kind:         EventRenderFailed,
		JobID:        "job-2",
		Status:       "failed",
		ErrorMessage: "Render timed out after 6 minutes.",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["event"] != "render.failed" {
		t.Errorf("event = %v", got["event"])
	}
	if _, present := got["resultImageUrl"]; present {
		t.Error("resultImageUrl must be omitted on failure events")
	}
	if got["errorMessage"] != "Render timed out after 6 minutes." {
		t.Errorf("errorMessage = %v", got["errorMessage"])
	}
}
