package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/provider"
)

// Name identifies this provider in stored records.
const Name = "openai"

// Client calls the OpenAI Images API. Generation is synchronous,
// so Submit always returns an image URL or inline image data.
type Client struct {
	api   *goopenai.Client
	model string
	size  string
}

// New creates a Client. An empty baseURL keeps the SDK default
// and a non-positive timeout falls back to 90 seconds.
func New(baseURL, apiKey, model, size string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:   goopenai.NewClientWithConfig(cfg),
		model: model,
		size:  size,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Submit generates one image for prompt.
func (c *Client) Submit(ctx context.Context, prompt string, opts model.GenerateOptions) (model.Submission, error) {
	req := goopenai.ImageRequest{
		Prompt: prompt,
		Model:  c.model,
		N:      1,
		Size:   c.size,
	}
	if req.Size == "" && opts.Width > 0 && opts.Height > 0 {
		req.Size = fmt.Sprintf("%dx%d", opts.Width, opts.Height)
	}
	// gpt-image models only return inline data and reject response_format.
	if !strings.HasPrefix(c.model, "gpt-image") {
		req.ResponseFormat = goopenai.CreateImageResponseFormatURL
	}

	resp, err := c.api.CreateImage(ctx, req)
	if err != nil {
		return model.Submission{}, fmt.Errorf("openai generate: %w: %v", provider.ErrRemoteCall, err)
	}
	if len(resp.Data) == 0 {
		return model.Submission{}, fmt.Errorf("openai generate: %w: empty data", provider.ErrRemoteCall)
	}

	item := resp.Data[0]
	if item.RevisedPrompt != "" {
		zlog.Logger.Debug().Str("revised_prompt", item.RevisedPrompt).Msg("openai revised prompt")
	}

	switch {
	case item.URL != "":
		return model.Submission{ImageURL: item.URL}, nil
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return model.Submission{}, fmt.Errorf("openai generate: %w: decode b64_json: %v", provider.ErrRemoteCall, err)
		}
		return model.Submission{ImageData: data}, nil
	default:
		return model.Submission{}, fmt.Errorf("openai generate: %w: no image in response", provider.ErrRemoteCall)
	}
}

// Status is not available: OpenAI image generation has no job to poll.
func (c *Client) Status(_ context.Context, jobID string) (model.Job, error) {
	return model.Job{}, fmt.Errorf("openai status %s: %w", jobID, provider.ErrUnsupported)
}
