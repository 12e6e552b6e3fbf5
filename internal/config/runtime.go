package config

import "time"

// RuntimeConfig holds the hot-updatable settings read through closures by
// the core components. Swap the whole struct through an atomic.Pointer;
// never mutate a published instance.
type RuntimeConfig struct {
	// Selection
	DefaultStrategy string `json:"default_strategy"`

	// Classification
	HighLatencyThreshold Duration `json:"high_latency_threshold"`
	LocalTLDs            []string `json:"local_tlds"`

	// Connection tracking
	ConnectionRetention    Duration `json:"connection_retention"`
	ObservationDecayWindow Duration `json:"observation_decay_window"`

	// Observer thresholds
	LatencyAlertThreshold Duration `json:"latency_alert_threshold"`
	ConnectTimeout        Duration `json:"connect_timeout"`
	DestinationCeiling    int      `json:"destination_ceiling"`
	AlertRetention        Duration `json:"alert_retention"`
}

// NewDefaultRuntimeConfig returns the default runtime settings.
func NewDefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		DefaultStrategy: "weighted",

		HighLatencyThreshold: Duration(time.Second),
		LocalTLDs:            nil, // empty keeps the built-in local set

		ConnectionRetention:    Duration(5 * time.Minute),
		ObservationDecayWindow: Duration(10 * time.Minute),

		LatencyAlertThreshold: Duration(2 * time.Second),
		ConnectTimeout:        Duration(30 * time.Second),
		DestinationCeiling:    50,
		AlertRetention:        Duration(10 * time.Minute),
	}
}
