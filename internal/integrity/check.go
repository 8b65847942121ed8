// Package integrity checks the running cangate binary against a recorded
// SHA-256 before the gateway opens any bus. The expected digest comes from
// the build (ldflags) or from a checksum file written at install time.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExpectedHash is set at build time via:
//
//	-ldflags "-X github.com/ppiankov/cangate/internal/integrity.ExpectedHash=<sha256hex>"
var ExpectedHash string

// ChecksumPaths are searched in order when ExpectedHash is empty.
var ChecksumPaths = []string{
	"/etc/cangate/binary.sha256",
	"$HOME/.cangate/binary.sha256",
}

// TamperLogDir receives tamper.jsonl on a mismatch.
var TamperLogDir = "/var/log/cangate"

// ErrMismatch is returned when the binary digest differs from the expected one.
var ErrMismatch = errors.New("integrity: binary checksum mismatch")

// TamperEvent is one line of tamper.jsonl.
type TamperEvent struct {
	Timestamp    string `json:"timestamp"`
	Binary       string `json:"binary"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Hostname     string `json:"hostname"`
}

// Result describes a completed check.
type Result struct {
	Binary   string
	Expected string
	Actual   string
	// Skipped is set when no expected digest was available.
	Skipped bool
}

// Verify checks the running executable.
func Verify(logger *slog.Logger) (Result, error) {
	exe, err := os.Executable()
	if err != nil {
		return Result{}, fmt.Errorf("integrity: resolve executable: %w", err)
	}
	return VerifyFile(exe, logger)
}

// VerifyFile checks path against ExpectedHash or the first valid checksum
// file. Without either the check is skipped and reported as such. A
// mismatch is appended to the tamper log and returns ErrMismatch.
func VerifyFile(path string, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := Result{Binary: path, Expected: strings.ToLower(ExpectedHash)}
	if res.Expected == "" {
		res.Expected = loadChecksumFile()
	}
	if res.Expected == "" {
		res.Skipped = true
		logger.Warn("integrity check skipped, no expected binary hash")
		return res, nil
	}

	actual, err := HashFile(path)
	if err != nil {
		return res, fmt.Errorf("integrity: hash %s: %w", path, err)
	}
	res.Actual = actual

	if actual == res.Expected {
		logger.Info("binary checksum verified", "sha256", actual[:12])
		return res, nil
	}

	ev := TamperEvent{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Binary:       path,
		ExpectedHash: res.Expected,
		ActualHash:   actual,
	}
	ev.Hostname, _ = os.Hostname()
	if err := writeTamperEvent(ev); err != nil {
		logger.Error("tamper log write failed", "err", err)
	}
	logger.Error("binary checksum mismatch", "binary", path, "expected", res.Expected, "actual", actual)
	return res, fmt.Errorf("%w (expected %s, got %s)", ErrMismatch, res.Expected, actual)
}

// HashSelf returns the hex SHA-256 of the running executable.
func HashSelf() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("integrity: resolve executable: %w", err)
	}
	return HashFile(exe)
}

// WriteChecksum records the running executable's digest at path.
func WriteChecksum(path string) (string, error) {
	sum, err := HashSelf()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("integrity: %w", err)
	}
	if err := os.WriteFile(path, []byte(sum+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("integrity: write checksum: %w", err)
	}
	return sum, nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadChecksumFile() string {
	for _, p := range ChecksumPaths {
		data, err := os.ReadFile(os.ExpandEnv(p))
		if err != nil {
			continue
		}
		// sha256sum output carries the file name after the digest.
		fields := strings.Fields(string(data))
		if len(fields) == 0 {
			continue
		}
		sum := strings.ToLower(fields[0])
		if _, err := hex.DecodeString(sum); err == nil && len(sum) == 64 {
			return sum
		}
	}
	return ""
}

func writeTamperEvent(ev TamperEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(TamperLogDir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(TamperLogDir, "tamper.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
