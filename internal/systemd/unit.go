package systemd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultUnitDir is where Install puts the unit on a real system.
const DefaultUnitDir = "/etc/systemd/system"

// DefaultHashPath holds the install-time digest of the unit file.
const DefaultHashPath = "/var/lib/cangate/unit-file.sha256"

// Install writes the unit into dir and records its digest at hashPath.
// It returns the unit file path.
func Install(dir, hashPath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("systemd: %w", err)
	}
	unitPath := filepath.Join(dir, UnitName)
	if err := os.WriteFile(unitPath, []byte(UnitTemplate()), 0o644); err != nil {
		return "", fmt.Errorf("systemd: write unit: %w", err)
	}
	if err := RecordHash(unitPath, hashPath); err != nil {
		return unitPath, err
	}
	return unitPath, nil
}

// RecordHash stores the digest of unitPath at hashPath.
func RecordHash(unitPath, hashPath string) error {
	data, err := os.ReadFile(unitPath)
	if err != nil {
		return fmt.Errorf("systemd: read unit: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(hashPath), 0o755); err != nil {
		return fmt.Errorf("systemd: %w", err)
	}
	h := sha256.Sum256(data)
	if err := os.WriteFile(hashPath, []byte(hex.EncodeToString(h[:])+"\n"), 0o600); err != nil {
		return fmt.Errorf("systemd: write hash: %w", err)
	}
	return nil
}

// CheckUnit compares unitPath against the digest at hashPath and returns a
// warning when the unit changed since install. An empty result means the
// unit matches or there is nothing to compare (no unit or no recorded hash).
func CheckUnit(unitPath, hashPath string) string {
	data, err := os.ReadFile(unitPath)
	if err != nil {
		return ""
	}
	stored, err := os.ReadFile(hashPath)
	if err != nil {
		return ""
	}
	expected := strings.TrimSpace(string(stored))
	if len(expected) != 64 {
		return ""
	}

	h := sha256.Sum256(data)
	actual := hex.EncodeToString(h[:])
	if actual == expected {
		return ""
	}
	return fmt.Sprintf("systemd unit %s modified since install (expected %s, got %s)",
		unitPath, expected[:16], actual[:16])
}
