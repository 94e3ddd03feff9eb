package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/uv-alert-service/internal/reminder"
)

// Upstream defaults.
const (
	DefaultGeopositionURL = "https://dataservice.accuweather.com/locations/v1/cities/geoposition/search"
	DefaultConditionsURL  = "https://dataservice.accuweather.com/currentconditions/v1"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	GeopositionURL    string
	ConditionsURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	StoreBackend string // "in_memory" or "memcached"
	StoreTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RefreshEnabled  bool
	RefreshInterval time.Duration

	ReminderWindow    reminder.Window
	ReminderFireDelay time.Duration
	ReminderLocation  *time.Location

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		GeopositionURL string `yaml:"geoposition_url"`
		ConditionsURL  string `yaml:"conditions_url"`
		Timeout        string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Store struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"store"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Refresh struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"refresh"`

	Reminder struct {
		WindowStart string `yaml:"window_start"`
		WindowEnd   string `yaml:"window_end"`
		FireDelay   string `yaml:"fire_delay"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"reminder"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set. API key comes from WEATHER_API_KEY env or
// the secrets file. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}

	cfg.GeopositionURL = strings.TrimSpace(fc.WeatherAPI.GeopositionURL)
	if cfg.GeopositionURL == "" {
		cfg.GeopositionURL = DefaultGeopositionURL
	}
	cfg.ConditionsURL = strings.TrimSpace(fc.WeatherAPI.ConditionsURL)
	if cfg.ConditionsURL == "" {
		cfg.ConditionsURL = DefaultConditionsURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 15*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 35*time.Second)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "in_memory"
	}
	cfg.StoreTTL = parseDuration(fc.Store.TTL, 24*time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Store.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Store.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = boolOr(cb.Enabled, true)
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.RefreshEnabled = boolOr(fc.Refresh.Enabled, true)
	cfg.RefreshInterval = parseDuration(fc.Refresh.Interval, 30*time.Minute)

	cfg.ReminderWindow, err = parseWindow(fc.Reminder.WindowStart, fc.Reminder.WindowEnd)
	if err != nil {
		return nil, err
	}
	cfg.ReminderFireDelay = parseDuration(fc.Reminder.FireDelay, reminder.DefaultFireDelay)
	tz := fc.Reminder.Timezone
	if env := os.Getenv("REMINDER_TIMEZONE"); env != "" {
		tz = env
	}
	cfg.ReminderLocation, err = parseLocation(tz)
	if err != nil {
		return nil, err
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 5*time.Minute)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKey(cwd string) (string, error) {
	if key := os.Getenv("WEATHER_API_KEY"); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read secrets file: %w", err)
		}
	} else {
		var sec secretsFile
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return "", fmt.Errorf("parse secrets file: %w", err)
		}
		if sec.WeatherAPIKey != "" {
			return sec.WeatherAPIKey, nil
		}
	}
	return "", fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
}

// parseWindow parses "HH:MM" bounds, defaulting each missing bound.
func parseWindow(start, end string) (reminder.Window, error) {
	w := reminder.DefaultWindow
	if s := strings.TrimSpace(start); s != "" {
		c, err := reminder.ParseClockTime(s)
		if err != nil {
			return reminder.Window{}, fmt.Errorf("reminder.window_start: %w", err)
		}
		w.Start = c
	}
	if s := strings.TrimSpace(end); s != "" {
		c, err := reminder.ParseClockTime(s)
		if err != nil {
			return reminder.Window{}, fmt.Errorf("reminder.window_end: %w", err)
		}
		w.End = c
	}
	return w, nil
}

// parseLocation loads an IANA zone name; empty means the process zone.
func parseLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone: %w", err)
	}
	return loc, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// A synchronous /uv request makes two sequential upstream calls, so
// RequestTimeout is raised to cover both when configured lower.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if min := 2 * cfg.WeatherAPITimeout; cfg.RequestTimeout <= min {
		cfg.RequestTimeout = min + time.Second
	}
	switch cfg.StoreBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("store.backend must be in_memory or memcached, got %q", cfg.StoreBackend)
	}
	if err := cfg.ReminderWindow.Validate(); err != nil {
		return err
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
