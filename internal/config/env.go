// Package config handles environment-based configuration loading, the
// hot-updatable runtime config, and the YAML rule/route definition files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig holds all environment-variable-driven settings (not
// hot-updatable).
type EnvConfig struct {
	// Directories
	JournalDir string
	GeoMMDB    string // optional mmdb path; empty disables IP lookups

	// Network
	ListenAddress string
	APIPort       int

	// Files
	RulesFile  string
	RoutesFile string

	// Core sizing
	ProbeConcurrency     int
	MaxObservedDomains   int
	MaxDestinationStates int
	EventRingCapacity    int

	// Periods for scheduler-driven maintenance
	AggregationInterval  time.Duration
	RetentionInterval    time.Duration
	AlertSweepInterval   time.Duration
	JournalFlushInterval time.Duration

	// Journal
	JournalQueueSize   int
	JournalBatchSize   int
	JournalDBMaxMB     int
	JournalRetainCount int
}

// LoadEnvConfig reads environment variables and returns a validated
// EnvConfig. Returns an error listing every invalid value.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.JournalDir = envStr("WAYFINDER_JOURNAL_DIR", "/var/lib/wayfinder/journal")
	cfg.GeoMMDB = envStr("WAYFINDER_GEO_MMDB", "")

	cfg.ListenAddress = strings.TrimSpace(envStr("WAYFINDER_LISTEN_ADDRESS", "127.0.0.1"))
	cfg.APIPort = envInt("WAYFINDER_API_PORT", 7433, &errs)

	cfg.RulesFile = envStr("WAYFINDER_RULES_FILE", "rules.yaml")
	cfg.RoutesFile = envStr("WAYFINDER_ROUTES_FILE", "routes.yaml")

	cfg.ProbeConcurrency = envInt("WAYFINDER_PROBE_CONCURRENCY", 8, &errs)
	cfg.MaxObservedDomains = envInt("WAYFINDER_MAX_OBSERVED_DOMAINS", 1024, &errs)
	cfg.MaxDestinationStates = envInt("WAYFINDER_MAX_DESTINATION_STATES", 4096, &errs)
	cfg.EventRingCapacity = envInt("WAYFINDER_EVENT_RING_CAPACITY", 1000, &errs)

	cfg.AggregationInterval = envDuration("WAYFINDER_AGGREGATION_INTERVAL", 30*time.Second, &errs)
	cfg.RetentionInterval = envDuration("WAYFINDER_RETENTION_INTERVAL", time.Minute, &errs)
	cfg.AlertSweepInterval = envDuration("WAYFINDER_ALERT_SWEEP_INTERVAL", 30*time.Second, &errs)
	cfg.JournalFlushInterval = envDuration("WAYFINDER_JOURNAL_FLUSH_INTERVAL", 10*time.Second, &errs)

	cfg.JournalQueueSize = envInt("WAYFINDER_JOURNAL_QUEUE_SIZE", 4096, &errs)
	cfg.JournalBatchSize = envInt("WAYFINDER_JOURNAL_BATCH_SIZE", 512, &errs)
	cfg.JournalDBMaxMB = envInt("WAYFINDER_JOURNAL_DB_MAX_MB", 128, &errs)
	cfg.JournalRetainCount = envInt("WAYFINDER_JOURNAL_DB_RETAIN_COUNT", 5, &errs)

	if cfg.ListenAddress == "" {
		errs = append(errs, "WAYFINDER_LISTEN_ADDRESS must not be empty")
	}
	validatePort("WAYFINDER_API_PORT", cfg.APIPort, &errs)
	validatePositive("WAYFINDER_PROBE_CONCURRENCY", cfg.ProbeConcurrency, &errs)
	validatePositive("WAYFINDER_EVENT_RING_CAPACITY", cfg.EventRingCapacity, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment config:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]string) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func envDuration(key string, def time.Duration, errs *[]string) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func validatePort(key string, port int, errs *[]string) {
	if port < 1 || port > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port %d out of range", key, port))
	}
}

func validatePositive(key string, n int, errs *[]string) {
	if n <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", key, n))
	}
}
