package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/uv-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/uv-alert-service/internal/display"
	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
	"github.com/kjstillabower/uv-alert-service/internal/pipeline"
	"github.com/kjstillabower/uv-alert-service/internal/traffic"
	"github.com/kjstillabower/uv-alert-service/internal/validation"
)

// Starter starts asynchronous pipeline runs. Implemented by *pipeline.Session.
type Starter interface {
	Start(coords models.Coordinates, opts pipeline.RunOptions) uint64
}

// LocationTracker holds the latest coordinates. Implemented by *location.Tracker.
type LocationTracker interface {
	Update(c models.Coordinates) (first bool)
	Latest() (models.Coordinates, bool)
}

// ViewSource returns the latest stored view. Implemented by *display.Presenter.
type ViewSource interface {
	Latest(ctx context.Context) (models.View, bool, error)
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// BreakerState, when set, reports the upstream circuit breaker state.
	BreakerState func() circuitbreaker.State
	// StorePing, when set, is called to check store reachability. Used when backend is memcached.
	StorePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runner       pipeline.Runner
	session      Starter
	tracker      LocationTracker
	views        ViewSource
	healthConfig *HealthConfig
	logger       *zap.Logger
	now          func() time.Time

	shuttingDown atomic.Bool

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	runner pipeline.Runner,
	session Starter,
	tracker LocationTracker,
	views ViewSource,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runner:       runner,
		session:      session,
		tracker:      tracker,
		views:        views,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health returns 503 shutting-down and refresh requests are refused while true.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the service is draining.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// PostLocation handles POST /location. The first accepted fix starts the first
// run with the wait indicator.
func (h *Handler) PostLocation(w http.ResponseWriter, r *http.Request) {
	var body locationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be {\"latitude\": number, \"longitude\": number}")
		return
	}
	if body.Latitude == nil || body.Longitude == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", validation.ErrCoordinatesMissing.Error())
		return
	}
	coords := models.Coordinates{Latitude: *body.Latitude, Longitude: *body.Longitude}
	if err := validation.ValidateCoordinates(coords); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	if !h.tracker.Update(coords) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accepted": true,
			"firstRun": false,
		})
		return
	}

	runID := h.session.Start(coords, pipeline.RunOptions{FirstRun: true})
	observability.LoggerFromContext(r.Context(), h.logger).Info("first location fix, run started",
		zap.Uint64("run_id", runID))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"firstRun": true,
		"runId":    runID,
	})
}

// GetUV handles GET /uv?lat=&lon=. It runs the pipeline synchronously; without
// query coordinates the latest tracked fix is used.
func (h *Handler) GetUV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon := q.Get("lat"), q.Get("lon")

	var coords models.Coordinates
	if strings.TrimSpace(lat) == "" && strings.TrimSpace(lon) == "" {
		c, ok := h.tracker.Latest()
		if !ok {
			writeError(w, r, http.StatusBadRequest, "LOCATION_REQUIRED", "lat and lon are required until a location has been posted")
			return
		}
		coords = c
	} else {
		c, err := validation.ParseCoordinates(lat, lon)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
			return
		}
		coords = c
	}

	out := h.runner.Run(r.Context(), coords)
	switch out.Status {
	case pipeline.StatusSuccess:
		writeJSON(w, http.StatusOK, display.ViewOf(out, h.now()))
	case pipeline.StatusQuotaExhausted:
		writePipelineError(w, r, http.StatusServiceUnavailable, "QUOTA_EXHAUSTED", out, false)
	default:
		if errors.Is(out.Err, context.DeadlineExceeded) && r.Context().Err() != nil {
			writePipelineError(w, r, http.StatusGatewayTimeout, "TIMEOUT", out, true)
			return
		}
		writePipelineError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", out, true)
	}
}

// PostRefresh handles POST /uv/refresh (pull-to-refresh). The run is
// asynchronous and never shows the wait indicator.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if h.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}
	coords, ok := h.tracker.Latest()
	if !ok {
		writeError(w, r, http.StatusConflict, "LOCATION_UNKNOWN", "no location has been posted yet")
		return
	}
	runID := h.session.Start(coords, pipeline.RunOptions{})
	if runID == 0 {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"runId": runID})
}

// GetLatest handles GET /uv/latest.
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	v, ok, err := h.views.Latest(r.Context())
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Warn("view read failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "latest view unavailable")
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "NO_READING", "no reading yet; post a location first")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetAdvisory handles GET /uv/advisory/{index}. An optional label query
// parameter overrides the category label in the title.
func (h *Handler) GetAdvisory(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INDEX", "index must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, display.MoreInfoFor(index, r.URL.Query().Get("label")))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["accuWeather"] = "unhealthy"
	} else {
		checks["accuWeather"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.StorePing != nil {
		if h.healthConfig.StorePing() == nil {
			checks["store"] = "healthy"
		} else {
			checks["store"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "uv-alert-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > circuit open > error rate breach > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.BreakerState != nil && h.healthConfig.BreakerState() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}

// writePipelineError writes a failed run using the outcome's user-facing
// message. The failing step and cause are logged at DEBUG.
func writePipelineError(w http.ResponseWriter, r *http.Request, status int, code string, out pipeline.Outcome, retry bool) {
	body := map[string]interface{}{
		"code":      code,
		"message":   out.Message(),
		"requestId": correlationID(r),
	}
	if retry {
		body["retry"] = true
	}
	var perr *pipeline.Error
	if errors.As(out.Err, &perr) {
		body["step"] = perr.Step
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("pipeline error", zap.Error(out.Err))
	}
}
