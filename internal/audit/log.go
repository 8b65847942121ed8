package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampFormat is the wall-clock layout of entry timestamps. CAN traffic
// runs at up to 100Hz per id, so entries carry microseconds.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// GenesisHash is the prev_hash of the first entry of a log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// DefaultSyncEvery is how many entries Record writes between fsyncs.
const DefaultSyncEvery = 16

// Log appends interlock decisions as JSONL, each line chained to the
// previous one by prev_hash. Writes go to the OS immediately; fsync runs
// every SyncEvery entries and on Sync and Close.
type Log struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	head     string
	pending  int
	syncEach int
}

// Open opens path for appending, creating it and its directory when
// missing. The chain continues from the last line already in the file.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	head := GenesisHash
	if existing, err := os.Open(path); err == nil {
		res := walkChain(existing, false)
		existing.Close()
		if res.Error != "" {
			return nil, fmt.Errorf("audit: read existing log: %s", res.Error)
		}
		if res.Head != "" {
			head = res.Head
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &Log{path: path, file: file, head: head, syncEach: DefaultSyncEvery}, nil
}

// SetSyncEvery sets how many entries may be written between fsyncs.
// Values below 1 sync every entry.
func (l *Log) SetSyncEvery(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 1 {
		n = 1
	}
	l.syncEach = n
}

// Record chains and appends entry. An empty Timestamp is filled with the
// current time.
func (l *Log) Record(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.head

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	l.head = HashLine(line)

	l.pending++
	if l.pending >= l.syncEach {
		return l.syncLocked()
	}
	return nil
}

// Head returns the hash the next entry will carry as prev_hash.
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Sync flushes written entries to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if l.pending == 0 {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	l.pending = 0
	return nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Close syncs and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	syncErr := l.syncLocked()
	if err := l.file.Close(); err != nil {
		return err
	}
	return syncErr
}

// HashLine returns "sha256:<hex>" of one JSONL line without its newline.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
