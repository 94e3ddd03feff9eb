package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/uvindex"
)

type runnerFunc func(ctx context.Context, coords models.Coordinates) Outcome

func (f runnerFunc) Run(ctx context.Context, coords models.Coordinates) Outcome { return f(ctx, coords) }

// recordingListener records every callback in order.
type recordingListener struct {
	mu        sync.Mutex
	events    []string
	delivered []Outcome
	deliverCh chan Outcome
}

func newRecordingListener() *recordingListener {
	return &recordingListener{deliverCh: make(chan Outcome, 16)}
}

func (l *recordingListener) ShowWaitIndicator(runID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("show:%d", runID))
}

func (l *recordingListener) HideWaitIndicator(runID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("hide:%d", runID))
}

func (l *recordingListener) Deliver(o Outcome) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf("deliver:%d", o.RunID))
	l.delivered = append(l.delivered, o)
	l.mu.Unlock()
	l.deliverCh <- o
}

func (l *recordingListener) snapshot() ([]string, []Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...), append([]Outcome(nil), l.delivered...)
}

func (l *recordingListener) waitDelivery(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-l.deliverCh:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return Outcome{}
	}
}

func successRunner() Runner {
	return runnerFunc(func(ctx context.Context, coords models.Coordinates) Outcome {
		return Outcome{Status: StatusSuccess, Risk: uvindex.Assess(6), Reading: models.Reading{Coordinates: coords}}
	})
}

func TestSession_FirstRunShowsAndHidesOnce(t *testing.T) {
	l := newRecordingListener()
	s := NewSession(successRunner(), l, nil)
	defer s.Close()

	id := s.Start(porto, RunOptions{FirstRun: true})
	out := l.waitDelivery(t)

	require.Equal(t, id, out.RunID)
	require.Equal(t, StatusSuccess, out.Status)
	events, _ := l.snapshot()
	require.Equal(t, []string{"show:1", "hide:1", "deliver:1"}, events)
}

func TestSession_FailureStillHidesOnce(t *testing.T) {
	l := newRecordingListener()
	runner := runnerFunc(func(context.Context, models.Coordinates) Outcome {
		return Outcome{Status: StatusQuotaExhausted, Err: &Error{Step: StepResolvePlace}}
	})
	s := NewSession(runner, l, nil)
	defer s.Close()

	s.Start(porto, RunOptions{ShowWaitIndicator: true})
	out := l.waitDelivery(t)

	require.Equal(t, StatusQuotaExhausted, out.Status)
	require.Equal(t, "(No more API requests)", out.Message())
	events, _ := l.snapshot()
	require.Equal(t, []string{"show:1", "hide:1", "deliver:1"}, events)
}

func TestSession_BackgroundRunHasNoIndicator(t *testing.T) {
	l := newRecordingListener()
	s := NewSession(successRunner(), l, nil)
	defer s.Close()

	s.Start(porto, RunOptions{})
	l.waitDelivery(t)

	events, _ := l.snapshot()
	require.Equal(t, []string{"deliver:1"}, events)
}

func TestSession_DiscardsSupersededOutcome(t *testing.T) {
	l := newRecordingListener()
	release := make(chan struct{})
	entered := make(chan struct{})

	var calls int
	var mu sync.Mutex
	runner := runnerFunc(func(ctx context.Context, coords models.Coordinates) Outcome {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		return Outcome{Status: StatusSuccess, Reading: models.Reading{Coordinates: coords}}
	})
	s := NewSession(runner, l, nil)
	defer s.Close()

	first := s.Start(models.Coordinates{Latitude: 1, Longitude: 1}, RunOptions{})
	<-entered
	second := s.Start(models.Coordinates{Latitude: 2, Longitude: 2}, RunOptions{})
	require.Greater(t, second, first)
	require.Equal(t, second, s.Latest())

	out := l.waitDelivery(t)
	require.Equal(t, second, out.RunID)

	close(release)
	s.wg.Wait()

	_, delivered := l.snapshot()
	require.Len(t, delivered, 1, "stale run must not be delivered")
	require.Equal(t, 2.0, delivered[0].Reading.Coordinates.Latitude)
}

func TestSession_CloseAbandonsInFlightRun(t *testing.T) {
	l := newRecordingListener()
	entered := make(chan struct{})
	var sawCancel bool
	runner := runnerFunc(func(ctx context.Context, coords models.Coordinates) Outcome {
		close(entered)
		<-ctx.Done()
		sawCancel = ctx.Err() != nil
		return Outcome{Status: StatusFailed, Err: &Error{Step: StepResolvePlace, Err: ctx.Err()}}
	})
	s := NewSession(runner, l, nil)

	s.Start(porto, RunOptions{FirstRun: true})
	<-entered

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	require.True(t, sawCancel)
	events, delivered := l.snapshot()
	require.Empty(t, delivered)
	require.Equal(t, []string{"show:1", "hide:1"}, events)

	require.Equal(t, uint64(0), s.Start(porto, RunOptions{}), "Start after Close is a no-op")
}

func TestSession_RunIDsIncrease(t *testing.T) {
	l := newRecordingListener()
	s := NewSession(successRunner(), l, nil)
	defer s.Close()

	var prev uint64
	for i := 0; i < 5; i++ {
		id := s.Start(porto, RunOptions{})
		require.Greater(t, id, prev)
		prev = id
	}
	s.wg.Wait()
	_, delivered := l.snapshot()
	require.NotEmpty(t, delivered)
	require.Equal(t, prev, delivered[len(delivered)-1].RunID)
}

func TestSession_WithPipeline(t *testing.T) {
	stub := newStub()
	p := newTestPipeline(t, stub)
	l := newRecordingListener()
	s := NewSession(p, l, nil)
	defer s.Close()

	s.Start(porto, RunOptions{FirstRun: true})
	out := l.waitDelivery(t)

	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, "Porto", out.Reading.Place.CityName)
	require.Equal(t, uvindex.High, out.Risk.Category)
}
