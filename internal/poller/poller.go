package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

var (
	// ErrJobFailed is returned when the remote job reports failure
	// or succeeds without an output.
	ErrJobFailed = errors.New("generation job failed")
	// ErrPollExhausted is returned when the job is still pending after
	// the last allowed attempt.
	ErrPollExhausted = errors.New("generation job did not finish in time")
)

// statusChecker reports the state of a remote job.
type statusChecker interface {
	Status(ctx context.Context, jobID string) (model.Job, error)
}

// Poller waits for remote generation jobs to resolve.
//
// The strategy's Attempts bounds the number of status checks (non-positive
// means unbounded), Delay is the first wait and Backoff multiplies it after
// every pending answer. maxDelay caps a single wait, timeout caps the whole
// Wait call.
type Poller struct {
	checker  statusChecker
	strategy retry.Strategy
	maxDelay time.Duration
	timeout  time.Duration
}

// New creates a Poller for the given checker.
func New(c statusChecker, s retry.Strategy, maxDelay, timeout time.Duration) *Poller {
	return &Poller{
		checker:  c,
		strategy: s,
		maxDelay: maxDelay,
		timeout:  timeout,
	}
}

// Wait polls jobID until it succeeds, fails, runs out of attempts or ctx
// is done. On success it returns the job's output reference.
func (p *Poller) Wait(ctx context.Context, jobID string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	delay := p.strategy.Delay

	for attempt := 1; p.strategy.Attempts <= 0 || attempt <= p.strategy.Attempts; attempt++ {
		job, err := p.checker.Status(ctx, jobID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("poll %s: %w", jobID, ctxErr)
			}
			return "", fmt.Errorf("poll %s: %w", jobID, err)
		}

		zlog.Logger.Debug().
			Str("job", jobID).
			Int("attempt", attempt).
			Str("status", string(job.Status)).
			Msg("polled generation job")

		switch job.Status {
		case model.JobSucceeded:
			if job.Output == "" {
				return "", fmt.Errorf("poll %s: %w: succeeded without output", jobID, ErrJobFailed)
			}
			return job.Output, nil
		case model.JobFailed:
			return "", fmt.Errorf("poll %s: %w: %s", jobID, ErrJobFailed, job.Error)
		}

		if p.strategy.Attempts > 0 && attempt == p.strategy.Attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("poll %s: %w", jobID, ctx.Err())
		case <-timer.C:
		}

		delay = p.next(delay)
	}

	return "", fmt.Errorf("poll %s: %w after %d attempts", jobID, ErrPollExhausted, p.strategy.Attempts)
}

// next applies the backoff multiplier and the delay cap.
func (p *Poller) next(delay time.Duration) time.Duration {
	if p.strategy.Backoff > 1 {
		delay = time.Duration(float64(delay) * p.strategy.Backoff)
	}

	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}

	return delay
}
