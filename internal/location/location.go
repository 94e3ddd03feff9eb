// Package location holds the most recent coordinates reported by the
// external location provider.
package location

import (
	"sync"
	"time"

	"github.com/kjstillabower/uv-alert-service/internal/models"
)

// Fix is one accepted coordinates update.
type Fix struct {
	Coordinates models.Coordinates `json:"coordinates"`
	ReceivedAt  time.Time          `json:"receivedAt"`
}

// Tracker keeps the latest Fix. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	latest  Fix
	updates uint64
	now     func() time.Time
}

// NewTracker returns a Tracker with no fix.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Update records c and reports whether it is the first fix the tracker has seen.
func (t *Tracker) Update(c models.Coordinates) (first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = Fix{Coordinates: c, ReceivedAt: t.now().UTC()}
	t.updates++
	return t.updates == 1
}

// Latest returns the most recent coordinates, false before the first fix.
func (t *Tracker) Latest() (models.Coordinates, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest.Coordinates, t.updates > 0
}

// LatestFix returns the most recent fix with its arrival time.
func (t *Tracker) LatestFix() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.updates > 0
}
