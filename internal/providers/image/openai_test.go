package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEditServer(t *testing.T, imageBytes []byte, capture *capturedEdit) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/inputs/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "source:"+strings.TrimPrefix(r.URL.Path, "/inputs/"))
	})
	mux.HandleFunc("/images/edits", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		capture.auth = r.Header.Get("Authorization")
		capture.model = r.FormValue("model")
		capture.prompt = r.FormValue("prompt")
		capture.size = r.FormValue("size")
		if r.MultipartForm != nil {
			capture.imageCount = len(r.MultipartForm.File["image[]"])
		}
		fmt.Fprintf(w, `{"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(imageBytes))
	})
	return httptest.NewServer(mux)
}

type capturedEdit struct {
	auth       string
	model      string
	prompt     string
	size       string
	imageCount int
}

func TestTransformCallsImagesEdits(t *testing.T) {
	var capture capturedEdit
	srv := newEditServer(t, []byte("generated png"), &capture)
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	result, err := gen.Transform(context.Background(), Request{
		JobID:         "job-1",
		InputImageURL: srv.URL + "/inputs/collage.png",
		RoomType:      "living room",
		Lighting:      "warm",
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if string(result.Data) != "generated png" {
		t.Errorf("result data = %q", result.Data)
	}
	if result.Prompt != transformPrompt("living room", "warm") {
		t.Errorf("result prompt = %q", result.Prompt)
	}
	if capture.auth != "Bearer sk-test" {
		t.Errorf("auth header = %q", capture.auth)
	}
	if capture.model != "gpt-image-1" {
		t.Errorf("model = %q", capture.model)
	}
	if capture.size != "1024x1024" {
		t.Errorf("size = %q", capture.size)
	}
	if capture.imageCount != 1 {
		t.Errorf("image count = %d, want 1", capture.imageCount)
	}
	if capture.prompt != result.Prompt {
		t.Errorf("sent prompt = %q", capture.prompt)
	}
}

func TestComposeSendsBothImages(t *testing.T) {
	var capture capturedEdit
	srv := newEditServer(t, []byte("composed png"), &capture)
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	result, err := gen.Compose(context.Background(), ComposeRequest{
		JobID:           "job-2",
		EmptyRoom:       []byte("empty room bytes"),
		CollageImageURL: srv.URL + "/inputs/collage.png",
		RoomType:        "bedroom",
		Lighting:        "soft",
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if string(result.Data) != "composed png" {
		t.Errorf("result data = %q", result.Data)
	}
	if capture.imageCount != 2 {
		t.Errorf("image count = %d, want 2", capture.imageCount)
	}
}

func TestComposeRequiresEmptyRoomBytes(t *testing.T) {
	gen, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	if _, err := gen.Compose(context.Background(), ComposeRequest{CollageImageURL: "https://u.test/c.png"}); err == nil {
		t.Fatal("expected error without empty room bytes")
	}
}

func TestEditSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/inputs/") {
			fmt.Fprint(w, "source")
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid image","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	_, err = gen.Transform(context.Background(), Request{
		JobID:         "job-3",
		InputImageURL: srv.URL + "/inputs/a.png",
	})
	if err == nil || !strings.Contains(err.Error(), "invalid image") {
		t.Fatalf("err = %v, want api error message", err)
	}
}

func TestNewOpenAIGeneratorRequiresKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(OpenAIOptions{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
