package location

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/uv-alert-service/internal/models"
)

func TestTracker_FirstUpdate(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Latest()
	require.False(t, ok)

	porto := models.Coordinates{Latitude: 41.53, Longitude: -8.62}
	require.True(t, tr.Update(porto))
	require.False(t, tr.Update(porto), "only the first update is the first fix")

	got, ok := tr.Latest()
	require.True(t, ok)
	require.Equal(t, porto, got)
}

func TestTracker_LatestFix(t *testing.T) {
	tr := NewTracker()
	at := time.Date(2024, 6, 14, 7, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return at }

	tr.Update(models.Coordinates{Latitude: 1, Longitude: 2})
	tr.Update(models.Coordinates{Latitude: 3, Longitude: 4})

	fix, ok := tr.LatestFix()
	require.True(t, ok)
	require.Equal(t, models.Coordinates{Latitude: 3, Longitude: 4}, fix.Coordinates)
	require.Equal(t, at, fix.ReceivedAt)
}

func TestTracker_ConcurrentUpdatesHaveOneFirst(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tr.Update(models.Coordinates{Latitude: float64(i)}) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, firsts)
}
