package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SNOOZE_SWEEP_INTERVAL", "ASSIGN_SETTLE_DELAY", "COMPLETION_TIMEOUT", "SEED_AGENTS", "NATS_ENABLED"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("port=%s", cfg.ServerPort)
	}
	if cfg.SnoozeSweepInterval != 5*time.Second || cfg.AssignSettleDelay != time.Second || cfg.CompletionTimeout != 20*time.Second {
		t.Errorf("engine timings: %s %s %s", cfg.SnoozeSweepInterval, cfg.AssignSettleDelay, cfg.CompletionTimeout)
	}
	if cfg.NATSEnabled {
		t.Error("NATS should be off by default")
	}
	if len(cfg.SeedAgents) != 0 {
		t.Errorf("seed agents=%v", cfg.SeedAgents)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SNOOZE_SWEEP_INTERVAL", "2s")
	t.Setenv("OPEN_HOUR", "11")
	t.Setenv("CLOSE_HOUR", "23")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("BUSINESS_TIMEZONE", "Europe/Paris")

	cfg := Load()
	if cfg.SnoozeSweepInterval != 2*time.Second {
		t.Errorf("sweep=%s", cfg.SnoozeSweepInterval)
	}
	if cfg.OpenHour != 11 || cfg.CloseHour != 23 {
		t.Errorf("hours=%d-%d", cfg.OpenHour, cfg.CloseHour)
	}
	if !cfg.NATSEnabled {
		t.Error("NATS_ENABLED ignored")
	}
	if cfg.RateLimitRequests != 120 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.RateLimitRequests)
	}
	if cfg.Location().String() != "Europe/Paris" {
		t.Errorf("location=%s", cfg.Location())
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{BusinessTimezone: "Mars/Olympus"}
	if cfg.Location() != time.UTC {
		t.Fatal("unknown zone should fall back to UTC")
	}
}

func TestParseSeedAgents(t *testing.T) {
	got := parseSeedAgents(" bob:Bob , ada:Ada:admin,, :nobody, cat")
	want := []SeedAgent{
		{ID: "bob", Name: "Bob", Role: "support"},
		{ID: "ada", Name: "Ada", Role: "admin"},
		{ID: "cat", Role: "support"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("agent %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
