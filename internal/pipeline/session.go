package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
)

// Runner executes one pipeline run. Implemented by *Pipeline.
type Runner interface {
	Run(ctx context.Context, coords models.Coordinates) Outcome
}

// Listener receives session events. Calls arrive on the run's goroutine;
// implementations marshal onto whatever context they need.
type Listener interface {
	ShowWaitIndicator(runID uint64)
	HideWaitIndicator(runID uint64)
	Deliver(outcome Outcome)
}

// RunOptions are caller-supplied flags for a single run.
type RunOptions struct {
	// FirstRun marks the run triggered by the first location fix.
	FirstRun bool
	// ShowWaitIndicator requests the blocking indicator for non-first runs.
	ShowWaitIndicator bool
}

func (o RunOptions) showIndicator() bool {
	return o.FirstRun || o.ShowWaitIndicator
}

// Session runs the pipeline asynchronously and delivers only the newest
// run's outcome to its Listener.
type Session struct {
	runner   Runner
	listener Listener
	logger   *zap.Logger

	seq atomic.Uint64

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// deliverMu makes the staleness check and Deliver one step so an older
	// run cannot deliver after a newer one.
	deliverMu sync.Mutex
}

// NewSession creates a Session. Close must be called to release in-flight runs.
func NewSession(runner Runner, listener Listener, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		runner:   runner,
		listener: listener,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Start launches a run on its own goroutine and returns its run ID. IDs
// increase monotonically. Start on a closed session returns 0 and does nothing.
func (s *Session) Start(coords models.Coordinates, opts RunOptions) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	id := s.seq.Add(1)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(id, coords, opts)
	return id
}

// Latest returns the ID of the most recently started run, 0 if none.
func (s *Session) Latest() uint64 {
	return s.seq.Load()
}

func (s *Session) run(id uint64, coords models.Coordinates, opts RunOptions) {
	defer s.wg.Done()

	logger := s.logger.With(zap.Uint64("run_id", id))
	ctx := context.WithValue(s.baseCtx, "logger", logger)

	show := opts.showIndicator()
	if show {
		s.listener.ShowWaitIndicator(id)
	}

	outcome := s.runner.Run(ctx, coords)
	outcome.RunID = id

	if show {
		s.listener.HideWaitIndicator(id)
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.baseCtx.Err() != nil {
		logger.Debug("run abandoned", zap.String("status", string(outcome.Status)))
		return
	}
	if latest := s.seq.Load(); id != latest {
		observability.PipelineSupersededTotal.Inc()
		logger.Debug("discarding superseded outcome",
			zap.Uint64("latest_run_id", latest),
			zap.String("status", string(outcome.Status)))
		return
	}
	s.listener.Deliver(outcome)
}

// Close cancels in-flight runs and waits for their goroutines to exit.
// Their outcomes are not delivered.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
