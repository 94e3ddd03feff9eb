// Package pipeline runs the resolve-place -> fetch-conditions -> classify
// sequence against AccuWeather and reports a single discriminated Outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/uv-alert-service/internal/client"
	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
	"github.com/kjstillabower/uv-alert-service/internal/parser"
	"github.com/kjstillabower/uv-alert-service/internal/traffic"
	"github.com/kjstillabower/uv-alert-service/internal/uvindex"
)

// Step names the pipeline stage a failure came from.
type Step string

const (
	StepResolvePlace    Step = "resolve_place"
	StepParsePlace      Step = "parse_place"
	StepFetchConditions Step = "fetch_conditions"
	StepParseConditions Step = "parse_conditions"
)

// Status is the discriminant of an Outcome.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusQuotaExhausted Status = "quota_exhausted"
	StatusFailed         Status = "failed"
)

// User-facing texts for non-success outcomes.
const (
	QuotaExhaustedMessage = "(No more API requests)"
	RetryMessage          = "Could not get the UV level. Pull to refresh to try again."
)

// Error is a pipeline failure tagged with the step that produced it.
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome is the result of one run. Reading and Risk are set only on success.
type Outcome struct {
	RunID   uint64
	Status  Status
	Reading models.Reading
	Risk    uvindex.Risk
	Err     error
}

// Message returns the text shown to the user for this outcome, empty on success.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusSuccess:
		return ""
	case StatusQuotaExhausted:
		return QuotaExhaustedMessage
	default:
		return RetryMessage
	}
}

// Config holds the upstream endpoints and credentials.
type Config struct {
	APIKey         string
	GeopositionURL string
	ConditionsURL  string
}

// Pipeline performs the two sequential upstream calls of a run.
type Pipeline struct {
	fetcher client.Fetcher
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Pipeline. A nil logger is replaced with a no-op logger.
func New(fetcher client.Fetcher, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run resolves coords to a place, fetches its current conditions and classifies
// the UV index. The conditions call is never made when place resolution fails.
func (p *Pipeline) Run(ctx context.Context, coords models.Coordinates) (out Outcome) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, p.logger)
	step := StepResolvePlace

	defer func() {
		if r := recover(); r != nil {
			out = p.fail(ctx, logger, step, fmt.Errorf("panic: %v", r))
		}
		observability.PipelineRunsTotal.WithLabelValues(string(out.Status)).Inc()
		observability.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	resp, err := p.fetcher.Request(client.WithEndpoint(ctx, "geoposition"), p.cfg.GeopositionURL, map[string]string{
		"apikey": p.cfg.APIKey,
		"q":      FormatCoordinates(coords),
	})
	if err != nil {
		return p.fail(ctx, logger, step, err)
	}

	step = StepParsePlace
	place, err := parser.ParsePlaceResolution(resp.Body)
	if err != nil {
		return p.fail(ctx, logger, step, err)
	}

	step = StepFetchConditions
	resp, err = p.fetcher.Request(client.WithEndpoint(ctx, "conditions"), ConditionsURL(p.cfg.ConditionsURL, place.Key), map[string]string{
		"apikey":  p.cfg.APIKey,
		"details": "true",
	})
	if err != nil {
		return p.fail(ctx, logger, step, err)
	}

	step = StepParseConditions
	snap, err := parser.ParseConditions(resp.Body)
	if err != nil {
		return p.fail(ctx, logger, step, err)
	}

	risk := uvindex.Assess(snap.UVIndex)
	observability.UVCategoryTotal.WithLabelValues(risk.Category.Slug()).Inc()
	traffic.RecordSuccess()

	logger.Debug("conditions fetched",
		zap.String("place_key", place.Key),
		zap.String("city", place.CityName),
		zap.Int("uv_index", snap.UVIndex),
		zap.String("category", risk.Category.String()),
		zap.Duration("duration", time.Since(start)))

	return Outcome{
		Status: StatusSuccess,
		Reading: models.Reading{
			Coordinates: coords,
			Place:       place,
			Conditions:  snap,
			FetchedAt:   p.now().UTC(),
		},
		Risk: risk,
	}
}

func (p *Pipeline) fail(ctx context.Context, logger *zap.Logger, step Step, err error) Outcome {
	status := StatusFailed
	if errors.Is(err, client.ErrQuotaExhausted) {
		status = StatusQuotaExhausted
	}
	observability.PipelineFailuresTotal.WithLabelValues(string(step)).Inc()

	// Abandoned runs say nothing about upstream health.
	if ctx.Err() == nil {
		traffic.RecordError()
	}

	logger.Warn("pipeline run failed",
		zap.String("step", string(step)),
		zap.String("status", string(status)),
		zap.Error(err))

	return Outcome{
		Status: status,
		Risk:   uvindex.Assess(models.UnknownUVIndex),
		Err:    &Error{Step: step, Err: err},
	}
}

// FormatCoordinates renders coords as the "lat,lon" query AccuWeather expects,
// using the shortest decimal form of each value.
func FormatCoordinates(c models.Coordinates) string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// ConditionsURL appends the escaped place key to the current-conditions base URL.
func ConditionsURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}
