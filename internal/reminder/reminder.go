// Package reminder decides when the daily UV reminder notification is armed.
// Evaluation is pure; delivery goes through a Notifier.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/uv-alert-service/internal/observability"
	"github.com/kjstillabower/uv-alert-service/internal/uvindex"
)

// Notification defaults.
const (
	DefaultFireDelay = 10 * time.Second
	ActionText       = "Check UV level"
	Badge            = 1
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" in 24-hour form.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns c on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// Window is a daily interval. Both bounds are inclusive.
type Window struct {
	Start ClockTime
	End   ClockTime
}

// DefaultWindow is the morning window, 06:30 to 08:30.
var DefaultWindow = Window{Start: ClockTime{Hour: 6, Minute: 30}, End: ClockTime{Hour: 8, Minute: 30}}

// Validate rejects windows that are empty or wrap past midnight.
func (w Window) Validate() error {
	start := w.Start.Hour*60 + w.Start.Minute
	end := w.End.Hour*60 + w.End.Minute
	if start >= end {
		return fmt.Errorf("reminder window start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// Contains reports whether now falls inside today's window.
func (w Window) Contains(now time.Time) bool {
	start, end := w.Start.On(now), w.End.On(now)
	return !now.Before(start) && !now.After(end)
}

// Repeat is the recurrence of an armed notification.
type Repeat string

const RepeatDaily Repeat = "daily"

// Decision carries the parameters of the notification to arm.
type Decision struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Action string    `json:"action"`
	Repeat Repeat    `json:"repeat"`
	Badge  int       `json:"badge"`
	FireAt time.Time `json:"fireAt"`
}

// Scheduler evaluates the reminder window.
type Scheduler struct {
	window    Window
	fireDelay time.Duration
}

// NewScheduler returns a Scheduler for window. fireDelay <= 0 uses DefaultFireDelay.
func NewScheduler(window Window, fireDelay time.Duration) *Scheduler {
	if fireDelay <= 0 {
		fireDelay = DefaultFireDelay
	}
	return &Scheduler{window: window, fireDelay: fireDelay}
}

// Window returns the configured window.
func (s *Scheduler) Window() Window { return s.window }

// Evaluate returns the notification to arm when now is inside the window.
func (s *Scheduler) Evaluate(now time.Time, city string, risk uvindex.Risk) (Decision, bool) {
	if !s.window.Contains(now) {
		return Decision{}, false
	}
	return Decision{
		Title:  "UV level for " + city,
		Body:   risk.Label(),
		Action: ActionText,
		Repeat: RepeatDaily,
		Badge:  Badge,
		FireAt: now.Add(s.fireDelay),
	}, true
}

// Notifier schedules a notification on the delivery platform.
type Notifier interface {
	Schedule(ctx context.Context, d Decision) error
}

// LogNotifier emits each decision as a structured log record.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger is replaced with a no-op logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Schedule(ctx context.Context, d Decision) error {
	observability.LoggerFromContext(ctx, n.logger).Info("uv reminder armed",
		zap.String("title", d.Title),
		zap.String("body", d.Body),
		zap.String("action", d.Action),
		zap.String("repeat", string(d.Repeat)),
		zap.Int("badge", d.Badge),
		zap.Time("fire_at", d.FireAt))
	return nil
}

// ErrNoNotifier is returned by Arm when the Armer has no Notifier.
var ErrNoNotifier = errors.New("reminder: no notifier configured")

// Armer applies scheduler decisions through a Notifier at most once per
// calendar day.
type Armer struct {
	scheduler *Scheduler
	notifier  Notifier
	logger    *zap.Logger
	loc       *time.Location

	mu      sync.Mutex
	lastDay string
	last    Decision
}

// NewArmer creates an Armer.
func NewArmer(scheduler *Scheduler, notifier Notifier, logger *zap.Logger) *Armer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Armer{scheduler: scheduler, notifier: notifier, logger: logger}
}

// SetLocation sets the time zone the window and calendar day are evaluated
// in. Call before the first Arm. nil keeps now's own location.
func (a *Armer) SetLocation(loc *time.Location) {
	a.loc = loc
}

// Arm evaluates the window and schedules the notification. It reports whether
// a notification was armed by this call; a second call on the same day is a no-op.
func (a *Armer) Arm(ctx context.Context, now time.Time, city string, risk uvindex.Risk) (Decision, bool, error) {
	if a.loc != nil {
		now = now.In(a.loc)
	}
	d, ok := a.scheduler.Evaluate(now, city, risk)
	if !ok {
		return Decision{}, false, nil
	}
	if a.notifier == nil {
		return Decision{}, false, ErrNoNotifier
	}

	day := now.Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastDay == day {
		a.logger.Debug("reminder already armed today", zap.String("day", day))
		return Decision{}, false, nil
	}
	if err := a.notifier.Schedule(ctx, d); err != nil {
		return Decision{}, false, fmt.Errorf("schedule reminder: %w", err)
	}
	a.lastDay = day
	a.last = d
	observability.RemindersArmedTotal.Inc()
	return d, true, nil
}

// Last returns the most recently armed decision.
func (a *Armer) Last() (Decision, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.lastDay != ""
}
