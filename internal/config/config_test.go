package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mode != "nooutput" {
		t.Errorf("expected nooutput, got %s", cfg.Mode)
	}
	if cfg.Listen != "127.0.0.1:7410" {
		t.Errorf("expected default listen, got %s", cfg.Listen)
	}
	if cfg.Variants.Mitsubishi.Engagement != "always" {
		t.Errorf("expected always engagement, got %s", cfg.Variants.Mitsubishi.Engagement)
	}
	if cfg.Variants.Mitsubishi.AddrChecks {
		t.Error("expected addr checks off by default")
	}
	if cfg.AuditSyncEvery != 16 {
		t.Errorf("expected audit sync every 16, got %d", cfg.AuditSyncEvery)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, hash, err := load("/nonexistent/cangate/config.yaml", map[string]string{})
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Mode != "nooutput" {
		t.Errorf("expected defaults, got mode %s", cfg.Mode)
	}
	empty := sha256.Sum256(nil)
	if hash != "sha256:"+hex.EncodeToString(empty[:]) {
		t.Errorf("expected empty-input hash, got %s", hash)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
mode: mitsubishi
param: 80
variants:
  mitsubishi:
    engagement: cruise_edge
    addr_checks: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, hash, err := load(path, map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SafetyMode() != safety.ModeMitsubishi || cfg.Param != 80 {
		t.Errorf("unexpected mode/param: %s/%d", cfg.Mode, cfg.Param)
	}
	if cfg.Listen != "127.0.0.1:7410" {
		t.Errorf("unset fields keep defaults, got listen %q", cfg.Listen)
	}
	opts := cfg.MitsubishiOptions()
	if opts.Engagement != mitsubishi.EngageCruiseEdge || !opts.AddrChecks {
		t.Errorf("unexpected variant options %+v", opts)
	}
	sum := sha256.Sum256([]byte(content))
	if hash != "sha256:"+hex.EncodeToString(sum[:]) {
		t.Errorf("hash must cover raw file bytes, got %s", hash)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := load(path, map[string]string{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: toyota\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err := load(path, map[string]string{})
	if !errors.Is(err, safety.ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestLoadRejectsUnknownEngagement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Variants.Mitsubishi.Engagement = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected engagement error")
	}
}

func TestEnvOverrides(t *testing.T) {
	environ := map[string]string{
		"CANGATE_MODE":                   "mitsubishi",
		"CANGATE_PARAM":                  "-3",
		"CANGATE_LISTEN":                 "0.0.0.0:9000",
		"CANGATE_AUDIT_LOG":              "/tmp/audit.jsonl",
		"CANGATE_MITSUBISHI_ENGAGEMENT":  "cruise_edge",
		"CANGATE_MITSUBISHI_ADDR_CHECKS": "true",
		"CANGATE_BRIDGE_BUSES":           "vcan1,vcan2",
		"CANGATE_AUDIT_SYNC_EVERY":       "1",
	}
	cfg, _, err := load("/nonexistent/config.yaml", environ)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "mitsubishi" || cfg.Param != -3 || cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("top-level overrides not applied: %+v", cfg)
	}
	if cfg.AuditSyncEvery != 1 {
		t.Errorf("expected audit sync override, got %d", cfg.AuditSyncEvery)
	}
	if cfg.AuditLog != "/tmp/audit.jsonl" {
		t.Errorf("expected audit log override, got %q", cfg.AuditLog)
	}
	if cfg.Variants.Mitsubishi.Engagement != "cruise_edge" || !cfg.Variants.Mitsubishi.AddrChecks {
		t.Errorf("variant overrides not applied: %+v", cfg.Variants.Mitsubishi)
	}
	if strings.Join(cfg.Bridge.Buses, ",") != "vcan1,vcan2" {
		t.Errorf("expected bus override, got %v", cfg.Bridge.Buses)
	}
}

func TestEnvInvalidParam(t *testing.T) {
	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, map[string]string{"CANGATE_PARAM": "70000"}); err == nil {
		t.Fatal("expected out-of-range param to fail")
	}
}

func TestAuditSyncEveryMustBePositive(t *testing.T) {
	cfg, err := Parse([]byte("audit_sync_every: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected audit_sync_every 0 to be rejected")
	}
}

func TestTooManyBuses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bridge.Buses = []string{"a", "b", "c", "d", "e"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected bus count error")
	}
}

func TestDefaultConfigYAMLRoundTrip(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), &cfg); err != nil {
		t.Fatalf("failed to parse DefaultConfigYAML: %v", err)
	}
	def := DefaultConfig()
	if cfg.Mode != def.Mode || cfg.Listen != def.Listen || cfg.Param != def.Param || cfg.AuditSyncEvery != def.AuditSyncEvery {
		t.Errorf("yaml defaults drifted: %+v", cfg)
	}
	if cfg.Variants != def.Variants {
		t.Errorf("variant defaults drifted: %+v", cfg.Variants)
	}
	if strings.Join(cfg.Bridge.Buses, ",") != strings.Join(def.Bridge.Buses, ",") || cfg.Bridge.Host != def.Bridge.Host {
		t.Errorf("bridge defaults drifted: %+v", cfg.Bridge)
	}
}

func FuzzConfigYAML(f *testing.F) {
	f.Add([]byte(DefaultConfigYAML()))
	f.Add([]byte("mode: mitsubishi\nparam: 100\n"))
	f.Add([]byte{})
	f.Add([]byte(`{{{not yaml at all`))

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := Parse(data)
		if err != nil {
			return
		}
		// Must not panic on any decoded value.
		_ = cfg.Validate()
		_ = cfg.SafetyMode()
		_ = cfg.MitsubishiOptions()
	})
}
