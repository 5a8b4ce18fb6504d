package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOSTNAME", "USER_NAME", "USER", "COMPUTER_ID", "CATALOG_PATH",
		"WORKSPACE", "PASSPHRASE", "PRODUCTION", "TICK_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsToDevelopmentPassphrase(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Passphrase != DefaultPassphrase {
		t.Errorf("Passphrase = %q, want default", cfg.Passphrase)
	}
	if cfg.TickInterval != defaultTickInterval {
		t.Errorf("TickInterval = %v, want %v", cfg.TickInterval, defaultTickInterval)
	}
}

func TestLoadRefusesDefaultPassphraseInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODUCTION", "true")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when PRODUCTION=true with no PASSPHRASE set")
	}
}

func TestLoadAcceptsExplicitPassphraseInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODUCTION", "true")
	t.Setenv("PASSPHRASE", "a real secret")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Passphrase != "a real secret" {
		t.Errorf("Passphrase = %q, want explicit value", cfg.Passphrase)
	}
}

func TestLoadComputerIDDefaultsFromUserAndHost(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOSTNAME", "Workstation")
	t.Setenv("USER_NAME", "Alice")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ComputerID != "alice-workstation" {
		t.Errorf("ComputerID = %q, want %q", cfg.ComputerID, "alice-workstation")
	}
}

func TestLoadExplicitComputerIDWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOSTNAME", "workstation")
	t.Setenv("USER_NAME", "alice")
	t.Setenv("COMPUTER_ID", "fixed-id")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ComputerID != "fixed-id" {
		t.Errorf("ComputerID = %q, want fixed-id", cfg.ComputerID)
	}
}

func TestLoadInvalidTickIntervalFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unparseable TICK_INTERVAL")
	}
}

func TestLoadCustomTickInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_INTERVAL", "30s")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.TickInterval)
	}
}
