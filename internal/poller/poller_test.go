package poller

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

// scriptedChecker replays a fixed sequence of job states; the last one repeats.
type scriptedChecker struct {
	mu    sync.Mutex
	jobs  []model.Job
	err   error
	calls int
	times []time.Time
}

func (s *scriptedChecker) Status(_ context.Context, jobID string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.times = append(s.times, time.Now())
	if s.err != nil {
		return model.Job{}, s.err
	}

	i := s.calls - 1
	if i >= len(s.jobs) {
		i = len(s.jobs) - 1
	}
	job := s.jobs[i]
	job.ID = jobID
	return job, nil
}

func strategy(attempts int, delay time.Duration) retry.Strategy {
	return retry.Strategy{Attempts: attempts, Delay: delay, Backoff: 1}
}

func TestWait_PendingThenSucceeded(t *testing.T) {
	const interval = 20 * time.Millisecond

	c := &scriptedChecker{jobs: []model.Job{
		{Status: model.JobPending},
		{Status: model.JobPending},
		{Status: model.JobSucceeded, Output: "X"},
	}}
	p := New(c, strategy(10, interval), 0, 0)

	start := time.Now()
	out, err := p.Wait(context.Background(), "job")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if out != "X" {
		t.Errorf("output = %q, want X", out)
	}
	if c.calls != 3 {
		t.Errorf("calls = %d, want 3", c.calls)
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("elapsed = %v, want at least two intervals", elapsed)
	}
}

func TestWait_SucceededStopsImmediately(t *testing.T) {
	c := &scriptedChecker{jobs: []model.Job{{Status: model.JobSucceeded, Output: "https://x"}}}
	p := New(c, strategy(10, time.Hour), 0, 0)

	out, err := p.Wait(context.Background(), "job")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if out != "https://x" || c.calls != 1 {
		t.Errorf("out = %q calls = %d, want https://x after 1 call", out, c.calls)
	}
}

func TestWait_FailedStopsImmediately(t *testing.T) {
	c := &scriptedChecker{jobs: []model.Job{{Status: model.JobFailed, Error: "nsfw"}}}
	p := New(c, strategy(10, time.Hour), 0, 0)

	_, err := p.Wait(context.Background(), "job")
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("error = %v, want ErrJobFailed", err)
	}
	if c.calls != 1 {
		t.Errorf("calls = %d, want 1", c.calls)
	}
}

func TestWait_SucceededWithoutOutput(t *testing.T) {
	c := &scriptedChecker{jobs: []model.Job{{Status: model.JobSucceeded}}}
	p := New(c, strategy(3, time.Millisecond), 0, 0)

	if _, err := p.Wait(context.Background(), "job"); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("error = %v, want ErrJobFailed", err)
	}
}

func TestWait_Exhausted(t *testing.T) {
	c := &scriptedChecker{jobs: []model.Job{{Status: model.JobPending}}}
	p := New(c, strategy(4, time.Millisecond), 0, 0)

	_, err := p.Wait(context.Background(), "job")
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("error = %v, want ErrPollExhausted", err)
	}
	if c.calls != 4 {
		t.Errorf("calls = %d, want 4", c.calls)
	}
}

func TestWait_StatusError(t *testing.T) {
	boom := errors.New("boom")
	c := &scriptedChecker{err: boom}
	p := New(c, strategy(5, time.Millisecond), 0, 0)

	if _, err := p.Wait(context.Background(), "job"); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if c.calls != 1 {
		t.Errorf("calls = %d, want 1", c.calls)
	}
}

func TestWait_Cancelled(t *testing.T) {
	c := &scriptedChecker{jobs: []model.Job{{Status: model.JobPending}}}
	p := New(c, strategy(0, time.Hour), 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx, "job")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestWait_Timeout(t *testing.T) {
	c := &scriptedChecker{jobs: []model.Job{{Status: model.JobPending}}}
	p := New(c, strategy(0, 10*time.Millisecond), 0, 50*time.Millisecond)

	_, err := p.Wait(context.Background(), "job")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		backoff  float64
		maxDelay time.Duration
		in       time.Duration
		want     time.Duration
	}{
		{name: "fixed interval", backoff: 1, in: 2 * time.Second, want: 2 * time.Second},
		{name: "zero backoff keeps interval", backoff: 0, in: time.Second, want: time.Second},
		{name: "doubles", backoff: 2, in: time.Second, want: 2 * time.Second},
		{name: "capped", backoff: 3, maxDelay: 5 * time.Second, in: 2 * time.Second, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil, retry.Strategy{Backoff: tt.backoff}, tt.maxDelay, 0)
			if got := p.next(tt.in); got != tt.want {
				t.Errorf("next(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
