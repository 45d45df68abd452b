// Package config handles environment variable loading for ports, database
// strings and scheduler tuning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// DatabaseURL selects the durable Transaction Log backend. Empty
	// means the in-memory log (single-node, no crash recovery).
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// OTLP collector endpoint for tracing
	OTELEndpoint string

	// Scheduler tuning
	AgeWeight          float64
	MaxReroutes        int
	HeartbeatInterval  time.Duration
	HeartbeatMisses    int
	CancelTimeoutTicks int64
	SweepInterval      time.Duration

	// UnitSecret guards the unit endpoints. Empty disables the check.
	UnitSecret string

	// Unit agent configuration
	ControllerURL         string
	UnitID                string
	UnitCapability        string
	UnitPollInterval      time.Duration
	UnitHeartbeatInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		HTTPPort:              7171,
		OTELEndpoint:          getEnv("OTEL_ENDPOINT", "localhost:4317"),
		AgeWeight:             5.0,
		MaxReroutes:           2,
		HeartbeatInterval:     1 * time.Second,
		HeartbeatMisses:       5,
		CancelTimeoutTicks:    30,
		SweepInterval:         1 * time.Second,
		UnitSecret:            os.Getenv("UNIT_SECRET"),
		ControllerURL:         getEnv("CONTROLLER_URL", "http://localhost:7171"),
		UnitID:                os.Getenv("UNIT_ID"),
		UnitCapability:        getEnv("UNIT_CAPABILITY", "textile"),
		UnitPollInterval:      500 * time.Millisecond,
		UnitHeartbeatInterval: 1 * time.Second,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.HTTPPort = p
	}

	if s := os.Getenv("AGE_WEIGHT"); s != "" {
		k, err := strconv.ParseFloat(s, 64)
		if err != nil || k <= 0 {
			return nil, fmt.Errorf("invalid AGE_WEIGHT %q", s)
		}
		cfg.AgeWeight = k
	}

	if s := os.Getenv("MAX_REROUTES"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_REROUTES %q", s)
		}
		cfg.MaxReroutes = n
	}

	if s := os.Getenv("HEARTBEAT_MISSES"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid HEARTBEAT_MISSES %q", s)
		}
		cfg.HeartbeatMisses = n
	}

	if s := os.Getenv("CANCEL_TIMEOUT_TICKS"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CANCEL_TIMEOUT_TICKS %q", s)
		}
		cfg.CancelTimeoutTicks = n
	}

	var err error
	if cfg.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.UnitPollInterval, err = durationEnv("UNIT_POLL_INTERVAL", cfg.UnitPollInterval); err != nil {
		return nil, err
	}
	if cfg.UnitHeartbeatInterval, err = durationEnv("UNIT_HEARTBEAT_INTERVAL", cfg.UnitHeartbeatInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
