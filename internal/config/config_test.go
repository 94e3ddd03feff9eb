package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/uv-alert-service/internal/reminder"
)

const minimalEnvYAML = `server:
  port: "8080"
weather_api:
  timeout: 5s
`

// chdirTemp switches into a fresh temp dir for the duration of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	unsetEnv(t, "WEATHER_API_KEY")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	unsetEnv(t, "WEATHER_API_KEY")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_SucceedsWithDotEnv(t *testing.T) {
	unsetEnv(t, "WEATHER_API_KEY")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=key-from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want key from .env", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvVarWinsOverDotEnv(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "key-from-env")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=key-from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env" {
		t.Errorf("WeatherAPIKey = %q, want key from env", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	t.Setenv("ENV_NAME", "nonexistent")
	t.Setenv("WEATHER_API_KEY", "test-key")
	chdirTemp(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	unsetEnv(t, "STORE_BACKEND")
	unsetEnv(t, "MEMCACHED_ADDRS")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "server:\n  port: \"\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.GeopositionURL != DefaultGeopositionURL {
		t.Errorf("GeopositionURL = %q", cfg.GeopositionURL)
	}
	if cfg.ConditionsURL != DefaultConditionsURL {
		t.Errorf("ConditionsURL = %q", cfg.ConditionsURL)
	}
	if cfg.WeatherAPITimeout != 15*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 15s", cfg.WeatherAPITimeout)
	}
	if cfg.RequestTimeout != 35*time.Second {
		t.Errorf("RequestTimeout = %v, want 35s", cfg.RequestTimeout)
	}
	if cfg.StoreBackend != "in_memory" {
		t.Errorf("StoreBackend = %q, want in_memory", cfg.StoreBackend)
	}
	if cfg.RefreshInterval != 30*time.Minute || !cfg.RefreshEnabled {
		t.Errorf("Refresh = %v/%v, want enabled every 30m", cfg.RefreshEnabled, cfg.RefreshInterval)
	}
	if !cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = false, want true by default")
	}
	if cfg.ReminderWindow != reminder.DefaultWindow {
		t.Errorf("ReminderWindow = %+v, want default", cfg.ReminderWindow)
	}
	if cfg.ReminderFireDelay != reminder.DefaultFireDelay {
		t.Errorf("ReminderFireDelay = %v", cfg.ReminderFireDelay)
	}
	if cfg.DegradedErrorPct != 50 {
		t.Errorf("DegradedErrorPct = %d, want 50", cfg.DegradedErrorPct)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, `weather_api:
  timeout: "not-a-duration"
refresh:
  interval: "-5m"
store:
  ttl: "soon"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 15*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 15s default", cfg.WeatherAPITimeout)
	}
	if cfg.RefreshInterval != 30*time.Minute {
		t.Errorf("RefreshInterval = %v, want 30m default", cfg.RefreshInterval)
	}
	if cfg.StoreTTL != 24*time.Hour {
		t.Errorf("StoreTTL = %v, want 24h default", cfg.StoreTTL)
	}
}

func TestLoad_ValidationFailsWhenWeatherAPITimeoutZero(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "weather_api:\n  timeout: 0s\n")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected validation error for zero timeout")
	}
	if !strings.Contains(err.Error(), "WEATHER_API_TIMEOUT") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestLoad_RequestTimeoutCoversBothUpstreamCalls(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "weather_api:\n  timeout: 10s\nrequest:\n  timeout: 12s\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 21*time.Second {
		t.Errorf("RequestTimeout = %v, want 21s", cfg.RequestTimeout)
	}
}

func TestLoad_StoreBackend(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, `store:
  backend: memcached
  memcached:
    addrs: "cache-a:11211,cache-b:11211"
    timeout: 250ms
    max_idle_conns: 8
`)

	t.Run("from file", func(t *testing.T) {
		unsetEnv(t, "STORE_BACKEND")
		unsetEnv(t, "MEMCACHED_ADDRS")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.StoreBackend != "memcached" {
			t.Errorf("StoreBackend = %q", cfg.StoreBackend)
		}
		if cfg.MemcachedAddrs != "cache-a:11211,cache-b:11211" {
			t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
		}
		if cfg.MemcachedTimeout != 250*time.Millisecond || cfg.MemcachedMaxIdleConns != 8 {
			t.Errorf("memcached = %v/%d", cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "IN_MEMORY")
		t.Setenv("MEMCACHED_ADDRS", "env-cache:11211")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.StoreBackend != "in_memory" {
			t.Errorf("StoreBackend = %q, want in_memory", cfg.StoreBackend)
		}
		if cfg.MemcachedAddrs != "env-cache:11211" {
			t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "redis")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "store.backend") {
			t.Errorf("Load() error = %v, want store.backend error", err)
		}
	})
}

func TestLoad_ReliabilityAndRefresh(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, `reliability:
  rate_limit_rps: 3
  rate_limit_burst: 6
  circuit_breaker:
    enabled: false
    failure_threshold: 2
    success_threshold: 1
    timeout: 10s
refresh:
  enabled: false
  interval: 15m
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimitRPS != 3 || cfg.RateLimitBurst != 6 {
		t.Errorf("rate limit = %d/%d, want 3/6", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false")
	}
	if cfg.CircuitBreakerFailureThreshold != 2 || cfg.CircuitBreakerSuccessThreshold != 1 {
		t.Errorf("thresholds = %d/%d", cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerSuccessThreshold)
	}
	if cfg.CircuitBreakerTimeout != 10*time.Second {
		t.Errorf("CircuitBreakerTimeout = %v", cfg.CircuitBreakerTimeout)
	}
	if cfg.RefreshEnabled || cfg.RefreshInterval != 15*time.Minute {
		t.Errorf("Refresh = %v/%v, want disabled/15m", cfg.RefreshEnabled, cfg.RefreshInterval)
	}
}

func TestLoad_ReminderWindow(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")

	t.Run("custom", func(t *testing.T) {
		dir := chdirTemp(t)
		writeEnvFile(t, dir, "reminder:\n  window_start: \"07:00\"\n  window_end: \"09:15\"\n  fire_delay: 30s\n")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := reminder.Window{Start: reminder.ClockTime{Hour: 7}, End: reminder.ClockTime{Hour: 9, Minute: 15}}
		if cfg.ReminderWindow != want {
			t.Errorf("ReminderWindow = %+v, want %+v", cfg.ReminderWindow, want)
		}
		if cfg.ReminderFireDelay != 30*time.Second {
			t.Errorf("ReminderFireDelay = %v", cfg.ReminderFireDelay)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		dir := chdirTemp(t)
		writeEnvFile(t, dir, "reminder:\n  window_start: \"7am\"\n")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "reminder.window_start") {
			t.Errorf("Load() error = %v, want window_start error", err)
		}
	})

	t.Run("inverted", func(t *testing.T) {
		dir := chdirTemp(t)
		writeEnvFile(t, dir, "reminder:\n  window_start: \"09:00\"\n  window_end: \"08:00\"\n")
		if _, err := Load(); err == nil {
			t.Error("Load() expected error for inverted window")
		}
	})
}

func TestLoad_ReminderTimezone(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")

	t.Run("default is process zone", func(t *testing.T) {
		unsetEnv(t, "REMINDER_TIMEZONE")
		dir := chdirTemp(t)
		writeEnvFile(t, dir, minimalEnvYAML)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.ReminderLocation != time.Local {
			t.Errorf("ReminderLocation = %v, want Local", cfg.ReminderLocation)
		}
	})

	t.Run("from file", func(t *testing.T) {
		unsetEnv(t, "REMINDER_TIMEZONE")
		dir := chdirTemp(t)
		writeEnvFile(t, dir, "reminder:\n  timezone: Europe/Lisbon\n")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.ReminderLocation.String() != "Europe/Lisbon" {
			t.Errorf("ReminderLocation = %v, want Europe/Lisbon", cfg.ReminderLocation)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("REMINDER_TIMEZONE", "America/New_York")
		dir := chdirTemp(t)
		writeEnvFile(t, dir, "reminder:\n  timezone: Europe/Lisbon\n")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.ReminderLocation.String() != "America/New_York" {
			t.Errorf("ReminderLocation = %v, want America/New_York", cfg.ReminderLocation)
		}
	})

	t.Run("unknown zone", func(t *testing.T) {
		unsetEnv(t, "REMINDER_TIMEZONE")
		dir := chdirTemp(t)
		writeEnvFile(t, dir, "reminder:\n  timezone: Mars/Olympus\n")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "reminder.timezone") {
			t.Errorf("Load() error = %v, want reminder.timezone error", err)
		}
	})
}

func TestLoad_DegradedErrorPctOutOfRange(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "lifecycle:\n  degraded_error_pct: 150\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for degraded_error_pct > 100")
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	unsetEnv(t, "WEATHER_API_KEY")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: [unterminated\n")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("Load() error = %v, want parse secrets file", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "server: [\n")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file", err)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "test-key")
	unsetEnv(t, "ENV_NAME")
	unsetEnv(t, "STORE_BACKEND")
	root := findProjectRoot(t)
	origWd, _ := os.Getwd()
	if err := os.Chdir(root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreBackend != "in_memory" {
		t.Errorf("StoreBackend = %q, want in_memory in dev", cfg.StoreBackend)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("loadAPIKey_read_error", func(t *testing.T) {
		t.Skip("read-error path (non-IsNotExist) requires simulated ReadFile failure; not worth portability cost")
	})
	t.Run("Load_dotenv_parse_error", func(t *testing.T) {
		t.Skip("godotenv accepts nearly any line; a reliably malformed .env is parser-version dependent")
	})
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
