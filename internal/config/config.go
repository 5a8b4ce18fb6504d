// Package config loads runtime configuration for the zorigami core from
// environment variables, following the gateway's load-then-validate shape:
// values are sourced from the environment (optionally seeded by a local
// .env file) so they can be injected the same way in development and in
// production secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPassphrase is the fixed development passphrase used when
// PASSPHRASE is unset. It must never be accepted in production mode.
const DefaultPassphrase = "keyboard cat"

// Config captures the per-machine settings the core needs to run: its own
// identity, where its catalog lives, the passphrase protecting every pack
// and database archive, and how often the scheduler re-evaluates datasets.
type Config struct {
	Hostname   string
	Username   string
	ComputerID string

	CatalogPath string
	Workspace   string

	Passphrase string
	Production bool

	TickInterval time.Duration
}

const (
	defaultCatalogPath  = "./zorigami.db"
	defaultTickInterval = 5 * time.Minute
)

// Load reads configuration from the environment, applying a best-effort
// .env load first so `go run` from the repo root or a subdirectory both
// pick up local overrides without requiring the caller to `source` one by
// hand.
func Load() (Config, error) {
	_ = godotenv.Load(".env", "../.env", "../../.env")

	hostname := firstNonEmpty(os.Getenv("HOSTNAME"), osHostname())
	username := firstNonEmpty(os.Getenv("USER_NAME"), os.Getenv("USER"))

	cfg := Config{
		Hostname:     hostname,
		Username:     username,
		ComputerID:   firstNonEmpty(os.Getenv("COMPUTER_ID"), deriveComputerID(hostname, username)),
		CatalogPath:  firstNonEmpty(os.Getenv("CATALOG_PATH"), defaultCatalogPath),
		Workspace:    strings.TrimSpace(os.Getenv("WORKSPACE")),
		Passphrase:   os.Getenv("PASSPHRASE"),
		Production:   parseBoolEnv("PRODUCTION"),
		TickInterval: defaultTickInterval,
	}

	if raw := strings.TrimSpace(os.Getenv("TICK_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid TICK_INTERVAL %q: %w", raw, err)
		}
		cfg.TickInterval = d
	}

	if cfg.Passphrase == "" {
		cfg.Passphrase = DefaultPassphrase
	}
	if cfg.Production && cfg.Passphrase == DefaultPassphrase {
		return Config{}, fmt.Errorf("config: refusing to start in production mode with the default PASSPHRASE")
	}

	if abs, err := filepath.Abs(cfg.CatalogPath); err == nil {
		cfg.CatalogPath = abs
	}
	return cfg, nil
}

func osHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}

// deriveComputerID gives every machine a stable, human-legible default
// identity derived from its hostname and username, used as the bucket for
// regular pack uploads and the catalog self-backup.
func deriveComputerID(hostname, username string) string {
	h := strings.TrimSpace(strings.ToLower(hostname))
	u := strings.TrimSpace(strings.ToLower(username))
	if h == "" && u == "" {
		return "unknown-computer"
	}
	if u == "" {
		return h
	}
	if h == "" {
		return u
	}
	return u + "-" + h
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBoolEnv(key string) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return b
}
