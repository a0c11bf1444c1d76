// Package appconf holds application configuration loaded from the
// environment. A .env file in the working directory is honored so local
// development matches the container deployment.
package appconf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment indicates which deployment environment we're running in.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment maps a flag/env string to an Environment value.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

// Config carries every knob the application reads at startup.
type Config struct {
	Port    int
	Env     Environment
	ApiKeys []string
	Verbose bool

	// RateLimit tiers, requests per minute. Device identifies itself with
	// an X-Device-ID header; everything else falls back to the client IP.
	DeviceRateLimit int
	IPRateLimit     int

	// DBPath is the SQLite database location. Test env must use :memory:.
	DBPath string

	// Upstream endpoints.
	TransitBaseURL string
	GeocodeBaseURL string
	UserAgent      string

	// Weekly sync schedule (UTC).
	SyncEnabled bool
	SyncDay     time.Weekday
	SyncHour    int
	SyncMinute  int
}

const (
	defaultTransitBaseURL = "https://reddelineas.tussam.es"
	defaultGeocodeBaseURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent      = "sevibus/1.0"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// Load builds a Config from the environment. A missing .env file is not an
// error; explicit environment variables always win over defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenvInt("PORT", 4000),
		Env:             EnvFlagToEnvironment(os.Getenv("ENV")),
		ApiKeys:         ParseAPIKeys(os.Getenv("API_KEYS")),
		Verbose:         getenvBool("VERBOSE", false),
		DeviceRateLimit: getenvInt("DEVICE_RATE_LIMIT", 60),
		IPRateLimit:     getenvInt("IP_RATE_LIMIT", 300),
		DBPath:          getenvDefault("DB_PATH", "data/sevibus.db"),
		TransitBaseURL:  getenvDefault("TRANSIT_BASE_URL", defaultTransitBaseURL),
		GeocodeBaseURL:  getenvDefault("GEOCODE_BASE_URL", defaultGeocodeBaseURL),
		UserAgent:       getenvDefault("USER_AGENT", defaultUserAgent),
		SyncEnabled:     getenvBool("SYNC_ENABLED", true),
		SyncHour:        getenvInt("SYNC_HOUR", 4),
		SyncMinute:      getenvInt("SYNC_MINUTE", 0),
	}

	day, ok := weekdayNames[strings.ToLower(getenvDefault("SYNC_DAY", "sun"))]
	if !ok {
		return Config{}, fmt.Errorf("invalid SYNC_DAY: %q", os.Getenv("SYNC_DAY"))
	}
	cfg.SyncDay = day

	if cfg.SyncHour < 0 || cfg.SyncHour > 23 {
		return Config{}, fmt.Errorf("SYNC_HOUR out of range: %d", cfg.SyncHour)
	}
	if cfg.SyncMinute < 0 || cfg.SyncMinute > 59 {
		return Config{}, fmt.Errorf("SYNC_MINUTE out of range: %d", cfg.SyncMinute)
	}

	if cfg.Env == Test {
		cfg.DBPath = ":memory:"
	}

	return cfg, nil
}

// ParseAPIKeys splits a comma-separated key list, trimming whitespace.
func ParseAPIKeys(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, strings.TrimSpace(p))
	}
	return keys
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}
