package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/replicate/replicate-go"

	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/provider"
)

// Name identifies this provider in stored records.
const Name = "replicate"

// Client submits predictions through the Replicate SDK. A prediction is
// asynchronous: Submit returns its id and Status reports progress.
type Client struct {
	api     *sdk.Client
	owner   string
	name    string
	version string
}

// New creates a Client for model ("owner/name"). When version is set the
// prediction is created against that exact version instead of the model's latest.
func New(baseURL, token, model, version string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	owner, name, ok := strings.Cut(model, "/")
	if version == "" && (!ok || owner == "" || name == "") {
		return nil, fmt.Errorf("replicate: invalid model %q, want owner/name", model)
	}

	opts := []sdk.ClientOption{
		sdk.WithToken(token),
		sdk.WithHTTPClient(&http.Client{Timeout: timeout}),
		sdk.WithRetryPolicy(2, &sdk.ConstantBackoff{Base: 500 * time.Millisecond, Jitter: 250 * time.Millisecond}),
	}
	if baseURL != "" {
		opts = append(opts, sdk.WithBaseURL(baseURL))
	}

	api, err := sdk.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}

	return &Client{api: api, owner: owner, name: name, version: version}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Submit creates a prediction and returns its id as the job to poll.
func (c *Client) Submit(ctx context.Context, prompt string, opts model.GenerateOptions) (model.Submission, error) {
	input := sdk.PredictionInput{"prompt": prompt}
	if opts.Width > 0 && opts.Height > 0 {
		input["width"] = opts.Width
		input["height"] = opts.Height
	}

	var (
		p   *sdk.Prediction
		err error
	)
	if c.version != "" {
		p, err = c.api.CreatePrediction(ctx, c.version, input, nil, false)
	} else {
		p, err = c.api.CreatePredictionWithModel(ctx, c.owner, c.name, input, nil, false)
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("replicate submit: %w: %v", provider.ErrRemoteCall, err)
	}

	if p.ID == "" {
		return model.Submission{}, fmt.Errorf("replicate submit: %w: prediction without id", provider.ErrRemoteCall)
	}

	return model.Submission{JobID: p.ID}, nil
}

// Status fetches the current state of prediction jobID.
func (c *Client) Status(ctx context.Context, jobID string) (model.Job, error) {
	p, err := c.api.GetPrediction(ctx, jobID)
	if err != nil {
		return model.Job{}, fmt.Errorf("replicate status: %w: %v", provider.ErrRemoteCall, err)
	}

	return toJob(jobID, p), nil
}

// toJob maps Replicate's prediction states onto model.JobStatus.
func toJob(id string, p *sdk.Prediction) model.Job {
	job := model.Job{ID: id}

	switch p.Status {
	case sdk.Succeeded:
		job.Status = model.JobSucceeded
		job.Output = firstOutput(p.Output)
	case sdk.Failed, sdk.Canceled:
		job.Status = model.JobFailed
		job.Error = errorText(p.Error, p.Status)
	default: // starting, processing
		job.Status = model.JobPending
	}

	return job
}

// firstOutput returns the first URL of an output that is either a
// string or a list of strings.
func firstOutput(out sdk.PredictionOutput) string {
	switch v := out.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}

	return ""
}

func errorText(v any, status sdk.Status) string {
	switch e := v.(type) {
	case nil:
		return "prediction " + status.String()
	case string:
		return e
	default:
		b, _ := json.Marshal(e)
		return string(b)
	}
}
