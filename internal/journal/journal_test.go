package journal

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

func newTestJournal(t *testing.T, session string) (*Journal, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	j, err := New(db, session)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j, db
}

func TestSchemaCreated(t *testing.T) {
	_, db := newTestJournal(t, "s1")
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='engagement_transitions'").Scan(&name)
	if err != nil {
		t.Fatalf("expected table, got %v", err)
	}
}

func TestRecordAndList(t *testing.T) {
	j, _ := newTestJournal(t, "s1")

	trs := []safety.Transition{
		{TS: 0, Mode: safety.ModeMitsubishi, Cause: safety.CauseInit},
		{TS: 10000, Mode: safety.ModeMitsubishi, Cause: safety.CauseRx, ControlsAllowed: true},
		{TS: 4294967295, Mode: safety.ModeMitsubishi, Cause: safety.CauseRelay, RelayMalfunction: true},
	}
	for _, tr := range trs {
		if err := j.Record(tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := j.List("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Cause != "init" || got[1].Cause != "rx" || !got[1].ControlsAllowed {
		t.Errorf("unexpected order or content: %+v", got)
	}
	if got[2].ClockUS != 4294967295 || !got[2].RelayMalfunction || got[2].Mode != "mitsubishi" {
		t.Errorf("unexpected relay entry %+v", got[2])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("expected created_at parsed")
	}

	last, err := j.List("s1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0].Cause != "relay" {
		t.Fatalf("expected most recent entry, got %+v", last)
	}
}

func TestSessionsSummary(t *testing.T) {
	j1, db := newTestJournal(t, "s1")
	j2, err := New(db, "s2")
	if err != nil {
		t.Fatal(err)
	}

	j1.Record(safety.Transition{Cause: safety.CauseInit})
	j1.Record(safety.Transition{Cause: safety.CauseRx, ControlsAllowed: true})
	j1.Record(safety.Transition{Cause: safety.CauseRx})
	j1.Record(safety.Transition{Cause: safety.CauseRx, ControlsAllowed: true})
	j2.Record(safety.Transition{Cause: safety.CauseRelay, RelayMalfunction: true})

	sessions, err := j1.Sessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "s1" || sessions[0].Transitions != 4 || sessions[0].Engagements != 2 {
		t.Errorf("unexpected s1 summary %+v", sessions[0])
	}
	if sessions[1].RelayFaults != 1 {
		t.Errorf("unexpected s2 summary %+v", sessions[1])
	}

	all, _ := j1.List("", 0)
	if len(all) != 5 {
		t.Fatalf("expected 5 entries across sessions, got %d", len(all))
	}
}

func TestJournalAsInterlockObserver(t *testing.T) {
	j, _ := newTestJournal(t, "s-live")
	now := uint32(0)
	table := safety.Table{safety.ModeMitsubishi: mitsubishi.Factory(mitsubishi.Options{Engagement: mitsubishi.EngageCruiseEdge})}
	il := safety.NewInterlock(table,
		safety.WithClock(func() uint32 { return now }),
		safety.WithObserver(func(tr safety.Transition) {
			if err := j.Record(tr); err != nil {
				t.Errorf("record: %v", err)
			}
		}),
	)
	il.SetSafetyMode(safety.ModeMitsubishi, 0)
	now = 1000
	il.Rx(mitsubishi.EncodeACCStatus(false))
	il.Rx(mitsubishi.EncodeACCStatus(true))
	il.Rx(mitsubishi.EncodeACCStatus(false))

	got, err := j.List("s-live", 0)
	if err != nil {
		t.Fatal(err)
	}
	// nooutput init, mitsubishi init, engage, disengage
	if len(got) != 4 {
		t.Fatalf("expected 4 transitions, got %d: %+v", len(got), got)
	}
	if got[2].Cause != "rx" || !got[2].ControlsAllowed || got[3].ControlsAllowed {
		t.Errorf("unexpected engagement history %+v", got[2:])
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if j.Session() == "" {
		t.Fatal("expected generated session id")
	}
	if err := j.Record(safety.Transition{Cause: safety.CauseInit}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j2.Close()
	if j2.Session() == j.Session() {
		t.Fatal("each open starts a new session")
	}
	all, _ := j2.List("", 0)
	if len(all) != 1 {
		t.Fatalf("expected persisted entry, got %d", len(all))
	}
}
