package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/uv-alert-service/internal/observability"
)

// NewRouter wires the handler routes and middleware. limiter may be nil to
// disable rate limiting; requestTimeout bounds the synchronous GET /uv run.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.HandleFunc("/location", h.PostLocation).Methods(http.MethodPost)
	api.HandleFunc("/uv/refresh", h.PostRefresh).Methods(http.MethodPost)
	api.HandleFunc("/uv/latest", h.GetLatest).Methods(http.MethodGet)
	api.HandleFunc("/uv/advisory/{index}", h.GetAdvisory).Methods(http.MethodGet)

	uv := api.NewRoute().Subrouter()
	uv.Use(TimeoutMiddleware(requestTimeout))
	uv.HandleFunc("/uv", h.GetUV).Methods(http.MethodGet)

	return router
}
