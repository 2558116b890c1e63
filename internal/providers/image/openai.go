package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"renderspace/internal/infra"
)

// OpenAIOptions controls how the OpenAI image client is configured.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// OpenAIGenerator implements Generator over the OpenAI images/edits
// endpoint. Generation calls run for minutes, so the HTTP client carries
// a long timeout and every request is context-bound.
type OpenAIGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewOpenAIGenerator constructs the generator, applying defaults for the
// base URL, model and HTTP client.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-image-1"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &OpenAIGenerator{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Transform implements the single-step pipeline: one edit call on the
// input collage.
func (g *OpenAIGenerator) Transform(ctx context.Context, req Request) (*Result, error) {
	input, err := g.fetchImage(ctx, req.InputImageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch input image: %w", err)
	}
	prompt := transformPrompt(req.RoomType, req.Lighting)
	data, err := g.edit(ctx, req.JobID, prompt, input)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Prompt: prompt}, nil
}

// RemoveBackground empties a furnished room photo.
func (g *OpenAIGenerator) RemoveBackground(ctx context.Context, jobID, roomPhotoURL string) (*Result, error) {
	photo, err := g.fetchImage(ctx, roomPhotoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch room photo: %w", err)
	}
	prompt := removeBackgroundPrompt("room")
	data, err := g.edit(ctx, jobID, prompt, photo)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Prompt: prompt}, nil
}

// Compose stages the collage into the empty room. The empty room bytes
// come from the removal step; the collage is fetched by reference.
func (g *OpenAIGenerator) Compose(ctx context.Context, req ComposeRequest) (*Result, error) {
	if len(req.EmptyRoom) == 0 {
		return nil, errors.New("openai: empty room image is required")
	}
	collage, err := g.fetchImage(ctx, req.CollageImageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch collage image: %w", err)
	}
	prompt := composePrompt(req.RoomType, req.Lighting)
	data, err := g.edit(ctx, req.JobID, prompt, req.EmptyRoom, collage)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Prompt: prompt}, nil
}

type editResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// edit performs one images/edits call and returns the decoded image.
func (g *OpenAIGenerator) edit(ctx context.Context, jobID, prompt string, images ...[]byte) ([]byte, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	for i, img := range images {
		part, err := form.CreateFormFile("image[]", fmt.Sprintf("input-%d.png", i+1))
		if err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		if _, err := part.Write(img); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}
	_ = form.WriteField("model", g.model)
	_ = form.WriteField("prompt", prompt)
	_ = form.WriteField("n", "1")
	_ = form.WriteField("size", "1024x1024")
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	url := g.baseURL + "/images/edits"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	if g.logger != nil {
		g.logger.Debug().Str("job_id", jobID).Str("model", g.model).Msg("openai: images edit call")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	var parsed editResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode openai response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(payload))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("openai api error (status %d): %s", resp.StatusCode, msg)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, errors.New("openai response missing image data")
	}

	data, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	return data, nil
}

// fetchImage downloads an input image by URL.
func (g *OpenAIGenerator) fetchImage(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported image reference %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

var _ Generator = (*OpenAIGenerator)(nil)
