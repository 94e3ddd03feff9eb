package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
	"github.com/kjstillabower/uv-alert-service/internal/uvindex"
)

// inFlightRun is a single run that several callers may wait for.
type inFlightRun struct {
	done chan struct{}
	out  Outcome
}

// Coalescer is a Runner that shares one run among concurrent callers asking
// for the same coordinates, so a burst of requests costs one pair of
// upstream calls.
type Coalescer struct {
	runner  Runner
	timeout time.Duration

	mu       sync.Mutex
	inFlight map[string]*inFlightRun
}

// NewCoalescer wraps runner. timeout bounds the shared run, which is detached
// from the cancellation of the caller that started it.
func NewCoalescer(runner Runner, timeout time.Duration) *Coalescer {
	return &Coalescer{
		runner:   runner,
		timeout:  timeout,
		inFlight: make(map[string]*inFlightRun),
	}
}

// Run joins the in-flight run for coords or starts one. A caller whose ctx
// ends first gets a failed outcome; the shared run continues for the others.
func (c *Coalescer) Run(ctx context.Context, coords models.Coordinates) Outcome {
	key := FormatCoordinates(coords)

	c.mu.Lock()
	run, exists := c.inFlight[key]
	if exists {
		observability.PipelineCoalescedTotal.Inc()
	} else {
		run = &inFlightRun{done: make(chan struct{})}
		c.inFlight[key] = run
	}
	c.mu.Unlock()

	if !exists {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		go func() {
			defer cancel()
			run.out = c.runner.Run(runCtx, coords)
			c.mu.Lock()
			delete(c.inFlight, key)
			c.mu.Unlock()
			close(run.done)
		}()
	}

	select {
	case <-run.done:
		return run.out
	case <-ctx.Done():
		return Outcome{
			Status: StatusFailed,
			Risk:   uvindex.Assess(models.UnknownUVIndex),
			Err:    &Error{Step: StepResolvePlace, Err: ctx.Err()},
		}
	}
}
