// Package scheduler runs the periodic background refresh of the UV reading.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/pipeline"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 30 * time.Minute

// Starter launches an asynchronous pipeline run. Implemented by *pipeline.Session.
type Starter interface {
	Start(coords models.Coordinates, opts pipeline.RunOptions) uint64
}

// CoordinatesSource supplies the coordinates to refresh for. Implemented by *location.Tracker.
type CoordinatesSource interface {
	Latest() (models.Coordinates, bool)
}

// Scheduler periodically starts a background run for the latest coordinates.
// Background runs never show the wait indicator.
type Scheduler struct {
	scheduler *gocron.Scheduler
	session   Starter
	source    CoordinatesSource
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. A nil logger is replaced with a no-op logger.
func New(session Starter, source CoordinatesSource, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		session:   session,
		source:    source,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first refresh happens one interval after Start.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() { s.Tick() }); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("background refresh scheduled", zap.Duration("interval", s.interval))
	return nil
}

// Tick starts one background run. It returns the run ID, or 0 when no
// coordinates have been reported yet.
func (s *Scheduler) Tick() uint64 {
	coords, ok := s.source.Latest()
	if !ok {
		s.logger.Debug("background refresh skipped: no location yet")
		return 0
	}
	id := s.session.Start(coords, pipeline.RunOptions{})
	s.logger.Debug("background refresh started", zap.Uint64("run_id", id))
	return id
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
