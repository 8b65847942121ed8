// Package config loads the cangate configuration from YAML with
// environment overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CANGATE_"

// Mitsubishi tunes the Mitsubishi variant.
type Mitsubishi struct {
	Engagement string `yaml:"engagement" env:"MITSUBISHI_ENGAGEMENT"`
	AddrChecks bool   `yaml:"addr_checks" env:"MITSUBISHI_ADDR_CHECKS"`
}

// Variants holds per-variant options.
type Variants struct {
	Mitsubishi Mitsubishi `yaml:"mitsubishi"`
}

// Bridge names the SocketCAN interfaces of the gateway.
type Bridge struct {
	// Buses maps bus index to interface name; empty entries are unused.
	Buses []string `yaml:"buses" env:"BRIDGE_BUSES" envSeparator:","`
	// Host is the interface the driving computer transmits on.
	Host string `yaml:"host" env:"BRIDGE_HOST"`
	// LongitudinalAllowed is the host's longitudinal flag for bridged frames.
	LongitudinalAllowed bool `yaml:"longitudinal_allowed" env:"BRIDGE_LONGITUDINAL"`
}

// Config is the full cangate configuration.
type Config struct {
	Mode     string `yaml:"mode" env:"MODE"`
	Param    int16  `yaml:"param" env:"PARAM"`
	Listen   string `yaml:"listen" env:"LISTEN"`
	AuditLog string `yaml:"audit_log" env:"AUDIT_LOG"`
	// AuditSyncEvery is how many audit entries are written between fsyncs.
	AuditSyncEvery int      `yaml:"audit_sync_every" env:"AUDIT_SYNC_EVERY"`
	Journal        string   `yaml:"journal" env:"JOURNAL"`
	Variants       Variants `yaml:"variants"`
	Bridge         Bridge   `yaml:"bridge"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:           safety.ModeNoOutput.String(),
		Listen:         "127.0.0.1:7410",
		AuditSyncEvery: 16,
		Variants: Variants{
			Mitsubishi: Mitsubishi{
				Engagement: string(mitsubishi.EngageAlways),
			},
		},
		Bridge: Bridge{
			Buses: []string{"can0", "can1", "can2"},
			Host:  "vcan0",
		},
	}
}

// DefaultPath returns ~/.cangate/config.yaml, or "" if the home directory
// is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cangate", "config.yaml")
}

// Load reads configuration from path. Empty path falls back to
// DefaultPath. A missing file yields defaults. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash is Load that also returns the SHA-256 of the raw file bytes.
// Without a file the hash is that of empty input. Environment overrides
// are not part of the hash.
func LoadWithHash(path string) (*Config, string, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config: read %s: %w", path, err)
		}
		data = raw
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	if err := ApplyEnv(cfg, environ); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// Parse decodes YAML over the defaults. Fields absent from data keep
// their default values.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays CANGATE_* variables onto cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks names that must resolve at startup.
func (c *Config) Validate() error {
	if _, err := safety.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config: mode: %w", err)
	}
	if _, err := mitsubishi.ParseEngagement(c.Variants.Mitsubishi.Engagement); err != nil {
		return fmt.Errorf("config: variants.mitsubishi: %w", err)
	}
	if c.AuditSyncEvery < 1 {
		return fmt.Errorf("config: audit_sync_every must be at least 1, got %d", c.AuditSyncEvery)
	}
	if len(c.Bridge.Buses) > 4 {
		return fmt.Errorf("config: bridge.buses: at most 4 buses, got %d", len(c.Bridge.Buses))
	}
	return nil
}

// SafetyMode resolves the configured mode.
func (c *Config) SafetyMode() safety.Mode {
	m, err := safety.ParseMode(c.Mode)
	if err != nil {
		return safety.ModeNoOutput
	}
	return m
}

// MitsubishiOptions converts the variant section to hook options.
func (c *Config) MitsubishiOptions() mitsubishi.Options {
	e, err := mitsubishi.ParseEngagement(c.Variants.Mitsubishi.Engagement)
	if err != nil {
		e = mitsubishi.EngageAlways
	}
	return mitsubishi.Options{
		Engagement: e,
		AddrChecks: c.Variants.Mitsubishi.AddrChecks,
	}
}

// DefaultConfigYAML returns a commented YAML string for init-config.
func DefaultConfigYAML() string {
	return `# cangate configuration
#
# mode: safety variant selected at start (nooutput, mitsubishi).
# param: signed parameter passed to the variant's init
#        (mitsubishi: EPS torque factor in percent, <= 0 means 100).
mode: nooutput
param: 0

# host-link gRPC listen address.
listen: 127.0.0.1:7410

# hash-chained decision log; empty disables auditing.
audit_log: ""
# entries written between fsyncs of the audit log; 1 syncs every decision.
audit_sync_every: 16

# SQLite engagement journal; empty disables the journal.
journal: ""

variants:
  mitsubishi:
    # always: any received frame grants controls.
    # cruise_edge: engage on rising edge of ACC_STATUS cruise, exit on cruise off.
    engagement: always
    # checksum and liveness rules for 0xAA, 0x260, 0x1D2, 0x224/0x226.
    addr_checks: false

bridge:
  # SocketCAN interface per bus index.
  buses: [can0, can1, can2]
  # interface the driving computer transmits on.
  host: vcan0
  longitudinal_allowed: false
`
}
