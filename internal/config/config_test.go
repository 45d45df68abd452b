package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTPPort != 7171 {
		t.Errorf("HTTPPort = %d, want 7171", cfg.HTTPPort)
	}
	if cfg.MaxReroutes != 2 {
		t.Errorf("MaxReroutes = %d, want 2", cfg.MaxReroutes)
	}
	if cfg.HeartbeatMisses != 5 {
		t.Errorf("HeartbeatMisses = %d, want 5", cfg.HeartbeatMisses)
	}
	if cfg.CancelTimeoutTicks != 30 {
		t.Errorf("CancelTimeoutTicks = %d, want 30", cfg.CancelTimeoutTicks)
	}
	if cfg.SweepInterval != time.Second {
		t.Errorf("SweepInterval = %v, want 1s", cfg.SweepInterval)
	}
	if cfg.AgeWeight != 5.0 {
		t.Errorf("AgeWeight = %v, want 5.0", cfg.AgeWeight)
	}
}

func TestLoad_PortOverride(t *testing.T) {
	t.Setenv("PORT", "8080")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid PORT should fail")
	}
}

func TestLoad_RejectsZeroMaxReroutes(t *testing.T) {
	t.Setenv("MAX_REROUTES", "0")
	if _, err := Load(); err == nil {
		t.Error("Load() with MAX_REROUTES=0 should fail, the scheduler treats 0 as unset")
	}
}

func TestLoad_InvalidAgeWeight(t *testing.T) {
	t.Setenv("AGE_WEIGHT", "-1")
	if _, err := Load(); err == nil {
		t.Error("Load() with negative AGE_WEIGHT should fail")
	}
}

func TestLoad_DurationOverride(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "250ms")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SweepInterval != 250*time.Millisecond {
		t.Errorf("SweepInterval = %v, want 250ms", cfg.SweepInterval)
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 2s", cfg.HeartbeatInterval)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "whenever")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid SWEEP_INTERVAL should fail")
	}
}
