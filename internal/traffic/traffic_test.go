package traffic

import (
	"testing"
	"time"
)

func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordDenied_AndCounts verifies that denials count toward RequestCount but not ErrorRate.
func TestRecordDenied_AndCounts(t *testing.T) {
	Reset()
	RecordDenied()
	RecordDenied()
	RecordSuccess()
	if n := DenialCount(1 * time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := RequestCount(1 * time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if errs, total := ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestErrorRate_SuccessAndError(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

// TestTracker_WindowAndPrune drives the clock to check windowing and retention pruning.
func TestTracker_WindowAndPrune(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.RecordError()
	now = now.Add(2 * time.Minute)
	tr.RecordSuccess()

	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errs, total)
	}
	if errs, total := tr.ErrorRate(5 * time.Minute); errs != 1 || total != 2 {
		t.Errorf("ErrorRate(5m) = (%d, %d), want (1, 2)", errs, total)
	}

	now = now.Add(retention + time.Minute)
	tr.RecordDenied()
	tr.mu.Lock()
	n := len(tr.events)
	tr.mu.Unlock()
	if n != 1 {
		t.Errorf("events after prune = %d, want 1", n)
	}
}
