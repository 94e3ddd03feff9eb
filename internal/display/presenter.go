package display

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
	"github.com/kjstillabower/uv-alert-service/internal/pipeline"
	"github.com/kjstillabower/uv-alert-service/internal/reminder"
	"github.com/kjstillabower/uv-alert-service/internal/store"
)

// storeTimeout bounds each store round trip made from a session callback.
const storeTimeout = 2 * time.Second

// Presenter is the session Listener. It keeps the latest View in a store and
// arms the daily reminder after successful runs.
type Presenter struct {
	store  store.Store
	armer  *reminder.Armer
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	// mu serializes read-modify-write of the stored view.
	mu sync.Mutex
	// loadingRun is the run that last showed the wait indicator.
	loadingRun uint64
}

// NewPresenter creates a Presenter. armer may be nil to disable reminders.
func NewPresenter(st store.Store, armer *reminder.Armer, ttl time.Duration, logger *zap.Logger) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{
		store:  st,
		armer:  armer,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// ShowWaitIndicator marks the view as loading for runID.
func (p *Presenter) ShowWaitIndicator(runID uint64) {
	p.update(func(v *models.View) bool {
		p.loadingRun = runID
		v.Loading = true
		v.RunID = runID
		return true
	})
}

// HideWaitIndicator clears the loading flag unless a later run showed it
// again in the meantime.
func (p *Presenter) HideWaitIndicator(runID uint64) {
	p.update(func(v *models.View) bool {
		if p.loadingRun != runID {
			return false
		}
		v.Loading = false
		return true
	})
}

// Deliver applies a run outcome to the view. Failures keep the last reading
// on screen and replace only the status and message.
func (p *Presenter) Deliver(o pipeline.Outcome) {
	now := p.now()

	var notice *models.Notice
	if o.Status == pipeline.StatusSuccess && p.armer != nil {
		notice = p.arm(now, o)
	}

	p.update(func(v *models.View) bool {
		v.RunID = o.RunID
		v.Status = string(o.Status)
		v.Message = o.Message()
		if o.Status != pipeline.StatusSuccess {
			return true
		}
		Apply(v, o)
		if notice != nil {
			v.Reminder = notice
		}
		return true
	})

	if o.Status == pipeline.StatusSuccess {
		observability.UVIndexGauge.Set(float64(o.Risk.Index))
	}
}

// Apply fills v from a successful outcome.
func Apply(v *models.View, o pipeline.Outcome) {
	reading := o.Reading
	v.Reading = &reading
	v.UVIndex = o.Risk.Index
	v.Category = o.Risk.Category.Slug()
	v.CategoryLabel = o.Risk.Category.String()
	v.UVLine = UVLine(reading.Conditions)
	v.ConditionsLine = ConditionsLine(reading.Place, reading.Conditions)
	v.Advisory = o.Risk.Category.Advisory()
}

// ViewOf renders a standalone view for one outcome.
func ViewOf(o pipeline.Outcome, now time.Time) models.View {
	v := models.View{
		RunID:     o.RunID,
		Status:    string(o.Status),
		Message:   o.Message(),
		UVIndex:   o.Risk.Index,
		Category:  o.Risk.Category.Slug(),
		Advisory:  o.Risk.Category.Advisory(),
		UpdatedAt: now.UTC(),
	}
	v.CategoryLabel = o.Risk.Category.String()
	if o.Status == pipeline.StatusSuccess {
		Apply(&v, o)
	}
	return v
}

func (p *Presenter) arm(now time.Time, o pipeline.Outcome) *models.Notice {
	ctx := context.WithValue(context.Background(), "logger", p.logger.With(zap.Uint64("run_id", o.RunID)))
	d, armed, err := p.armer.Arm(ctx, now, o.Reading.Place.CityName, o.Risk)
	if err != nil {
		p.logger.Warn("arming reminder failed", zap.Error(err))
		return nil
	}
	if !armed {
		return nil
	}
	return &models.Notice{
		Title:  d.Title,
		Body:   d.Body,
		Action: d.Action,
		Repeat: string(d.Repeat),
		Badge:  d.Badge,
		FireAt: d.FireAt,
	}
}

// Latest returns the stored view.
func (p *Presenter) Latest(ctx context.Context) (models.View, bool, error) {
	return p.store.Get(ctx, store.LatestKey)
}

// update applies fn to the stored view and writes it back when fn reports a
// change. A failed read skips the write so the stored reading survives.
func (p *Presenter) update(fn func(v *models.View) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	v, _, err := p.store.Get(ctx, store.LatestKey)
	if err != nil {
		p.logger.Warn("view read failed, update skipped", zap.Error(err))
		return
	}
	if !fn(&v) {
		return
	}
	v.UpdatedAt = p.now().UTC()
	if err := p.store.Set(ctx, store.LatestKey, v, p.ttl); err != nil {
		p.logger.Warn("view write failed", zap.Error(err))
	}
}
