package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/uv-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/uv-alert-service/internal/client"
	"github.com/kjstillabower/uv-alert-service/internal/config"
	"github.com/kjstillabower/uv-alert-service/internal/display"
	httphandler "github.com/kjstillabower/uv-alert-service/internal/http"
	"github.com/kjstillabower/uv-alert-service/internal/location"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
	"github.com/kjstillabower/uv-alert-service/internal/pipeline"
	"github.com/kjstillabower/uv-alert-service/internal/reminder"
	"github.com/kjstillabower/uv-alert-service/internal/scheduler"
	"github.com/kjstillabower/uv-alert-service/internal/store"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	accuWeather := client.NewAccuWeatherClient(cfg.WeatherAPITimeout)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "accuweather",
			IsFailure:        client.BreakerFailure,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		accuWeather.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("accuweather").Set(0)
		healthConfig.BreakerState = cb.State
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var viewStore store.Store
	var memcacheCloser *store.MemcachedStore
	switch cfg.StoreBackend {
	case "memcached":
		mc, err := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached store", zap.Error(err))
		}
		memcacheCloser = mc
		viewStore = mc
		healthConfig.StorePing = mc.Ping
		logger.Info("store backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		viewStore = store.NewInMemoryStore()
		logger.Info("store backend: in_memory")
	}

	uvPipeline := pipeline.New(accuWeather, pipeline.Config{
		APIKey:         cfg.WeatherAPIKey,
		GeopositionURL: cfg.GeopositionURL,
		ConditionsURL:  cfg.ConditionsURL,
	}, logger)

	armer := reminder.NewArmer(
		reminder.NewScheduler(cfg.ReminderWindow, cfg.ReminderFireDelay),
		reminder.NewLogNotifier(logger),
		logger,
	)
	armer.SetLocation(cfg.ReminderLocation)
	presenter := display.NewPresenter(viewStore, armer, cfg.StoreTTL, logger)
	session := pipeline.NewSession(uvPipeline, presenter, logger)
	tracker := location.NewTracker()

	var refresher *scheduler.Scheduler
	if cfg.RefreshEnabled {
		refresher = scheduler.New(session, tracker, cfg.RefreshInterval, logger)
		if err := refresher.Start(); err != nil {
			logger.Fatal("refresh scheduler", zap.Error(err))
		}
		logger.Info("background refresh enabled", zap.Duration("interval", cfg.RefreshInterval))
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(
		pipeline.NewCoalescer(uvPipeline, cfg.RequestTimeout),
		session, tracker, presenter, healthConfig, logger,
	)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	observability.RegisterTrafficGauges(cfg.DegradedWindow)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("reminder_window", cfg.ReminderWindow.Start.String()+"-"+cfg.ReminderWindow.End.String()),
			zap.String("reminder_timezone", cfg.ReminderLocation.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	if refresher != nil {
		refresher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	// Abandons any pipeline run still in progress; its outcome is never delivered.
	session.Close()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
