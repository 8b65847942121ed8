package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/cangate/internal/model"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(decision model.Decision) AuditEntry {
	return AuditEntry{
		Timestamp:  time.Now().UTC().Format(TimestampFormat),
		SessionID:  "s-test123",
		Hook:       string(model.HookTx),
		Frame:      RecordFrame(model.MustFrame(0, 0x399, []byte{0, 5, 0, 0, 0, 0, 0, 0})),
		Decision:   string(decision),
		Mode:       "mitsubishi",
		ConfigHash: "sha256:abc123",
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 5; i++ {
		if err := l.Record(testEntry(model.Allow)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry(model.Deny)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	// Turn a denied command into an allowed one on line 2.
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"deny"`, `"allow"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry(model.Allow))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted entry to be invalid")
	}
	if result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsInsertedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry(model.Allow))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	fake := testEntry(model.Allow)
	fake.PrevHash = "sha256:fake"
	fakeJSON, _ := json.Marshal(fake)
	inserted := []string{lines[0], string(fakeJSON), lines[1], lines[2]}
	os.WriteFile(path, []byte(strings.Join(inserted, "\n")+"\n"), 0644)

	if Verify(path).Valid {
		t.Fatal("expected chain with inserted entry to be invalid")
	}
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	os.WriteFile(path, []byte{}, 0644)

	result := Verify(path)
	if !result.Valid || result.Lines != 0 {
		t.Fatalf("expected empty log valid with 0 lines, got %+v", result)
	}
}

func TestConcurrentWritesSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(testEntry(model.Allow))
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after concurrent writes, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 50 {
		t.Fatalf("expected 50 lines, got %d", result.Lines)
	}
}

func TestGenesisHashIsCorrect(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry(model.Allow))
	l.Close()

	data, _ := os.ReadFile(path)
	var entry AuditEntry
	json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry)

	if entry.PrevHash != GenesisHash {
		t.Fatalf("expected genesis hash %s, got %s", GenesisHash, entry.PrevHash)
	}
}

func TestRecordFillsTimestamp(t *testing.T) {
	l, path := newTestLog(t)
	e := testEntry(model.Allow)
	e.Timestamp = ""
	l.Record(e)
	l.Close()

	entries, err := Tail(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := time.Parse(TimestampFormat, entries[0].Timestamp); err != nil {
		t.Fatalf("expected parseable timestamp, got %q", entries[0].Timestamp)
	}
}

func TestHashLineIsDeterministic(t *testing.T) {
	line := []byte(`{"ts":"2025-01-15T10:30:00.000Z","session_id":"s-abc","hook":"tx","decision":"deny","prev_hash":"sha256:def"}`)
	h1 := HashLine(line)
	h2 := HashLine(line)
	if h1 != h2 {
		t.Fatalf("expected same hash, got %s and %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") || len(h1) != 7+64 {
		t.Fatalf("unexpected hash format %s", h1)
	}
}

func TestOpenExistingLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l1.Record(testEntry(model.Allow))
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		l2.Record(testEntry(model.Deny))
	}
	l2.Close()

	result := Verify(path)
	if !result.Valid || result.Lines != 5 {
		t.Fatalf("expected 5-line valid chain after reopen, got %+v", result)
	}
}

func TestForwardDestIsRecorded(t *testing.T) {
	l, path := newTestLog(t)
	e := testEntry(model.Allow)
	e.Hook = string(model.HookFwd)
	e.Dest = Forward(0)
	l.Record(e)
	l.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"dest":0`) {
		t.Fatalf("expected dest 0 to be serialized, got %s", data)
	}
}

func TestVerifyReportsHead(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry(model.Allow))
	l.Close()

	data, _ := os.ReadFile(path)
	want := HashLine([]byte(strings.TrimSpace(string(data))))
	if got := Verify(path).Head; got != want {
		t.Fatalf("expected head %s, got %s", want, got)
	}
}

func TestSyncEveryBatchesFsync(t *testing.T) {
	l, path := newTestLog(t)
	l.SetSyncEvery(3)

	for i := 0; i < 2; i++ {
		if err := l.Record(testEntry(model.Allow)); err != nil {
			t.Fatal(err)
		}
	}
	if l.pending != 2 {
		t.Fatalf("expected 2 unsynced entries, got %d", l.pending)
	}
	// Unsynced entries are already readable.
	if r := Verify(path); !r.Valid || r.Lines != 2 {
		t.Fatalf("expected 2 readable entries before sync, got %+v", r)
	}

	l.Record(testEntry(model.Deny))
	if l.pending != 0 {
		t.Fatalf("expected sync on the third entry, pending %d", l.pending)
	}

	l.Record(testEntry(model.Deny))
	if err := l.Sync(); err != nil || l.pending != 0 {
		t.Fatalf("Sync: %v, pending %d", err, l.pending)
	}

	head := l.Head()
	l.Close()
	if r := Verify(path); r.Head != head {
		t.Fatalf("log head %s, verified head %s", head, r.Head)
	}

	l.SetSyncEvery(0)
	if l.syncEach != 1 {
		t.Errorf("expected sync every entry for n < 1, got %d", l.syncEach)
	}
}

func TestVerifyCountsLinesBeforeBreak(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 4; i++ {
		l.Record(testEntry(model.Allow))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[3] = `{"prev_hash":"sha256:forged"}`
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	r := Verify(path)
	if r.Valid || r.ErrorLine != 4 || r.Lines != 3 {
		t.Fatalf("expected break at line 4 after 3 good lines, got %+v", r)
	}
}
