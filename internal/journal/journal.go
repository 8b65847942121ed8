// Package journal persists engagement transitions of an interlock in SQLite.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/cangate/internal/safety"
)

const schema = `
CREATE TABLE IF NOT EXISTS engagement_transitions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id        TEXT NOT NULL,
    mode              TEXT NOT NULL,
    cause             TEXT NOT NULL,
    controls_allowed  INTEGER NOT NULL,
    relay_malfunction INTEGER NOT NULL,
    clock_us          INTEGER NOT NULL,
    created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_session ON engagement_transitions(session_id, id);
`

// Entry is one recorded transition.
type Entry struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	Mode             string    `json:"mode"`
	Cause            string    `json:"cause"`
	ControlsAllowed  bool      `json:"controls_allowed"`
	RelayMalfunction bool      `json:"relay_malfunction"`
	ClockUS          uint32    `json:"clock_us"`
	CreatedAt        time.Time `json:"created_at"`
}

// SessionInfo summarizes one session's transitions.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	Transitions int       `json:"transitions"`
	Engagements int       `json:"engagements"`
	RelayFaults int       `json:"relay_faults"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
}

// Journal appends transitions for one session.
type Journal struct {
	db      *sql.DB
	session string
	now     func() time.Time
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// Open opens (or creates) the journal database at path and starts a new
// session. ":memory:" keeps it in memory.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and writes serialized.
	db.SetMaxOpenConns(1)
	j, err := New(db, NewSessionID())
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New creates the schema on db and returns a journal writing as session.
func New(db *sql.DB, session string) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db, session: session, now: time.Now}, nil
}

// Session returns the session id written by Record.
func (j *Journal) Session() string { return j.session }

// Record stores one transition.
func (j *Journal) Record(tr safety.Transition) error {
	_, err := j.db.Exec(`
		INSERT INTO engagement_transitions
		(session_id, mode, cause, controls_allowed, relay_malfunction, clock_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.session,
		tr.Mode.String(),
		tr.Cause,
		boolInt(tr.ControlsAllowed),
		boolInt(tr.RelayMalfunction),
		int64(tr.TS),
		j.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// List returns transitions of sessionID in insertion order. Empty sessionID
// lists every session. limit <= 0 means no limit; otherwise the most recent
// limit entries are returned.
func (j *Journal) List(sessionID string, limit int) ([]Entry, error) {
	q := `SELECT id, session_id, mode, cause, controls_allowed, relay_malfunction, clock_us, created_at
		FROM engagement_transitions`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var allowed, relay int
		var clock int64
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Mode, &e.Cause, &allowed, &relay, &clock, &created); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.ControlsAllowed = allowed != 0
		e.RelayMalfunction = relay != 0
		e.ClockUS = uint32(clock)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}

	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Sessions summarizes every recorded session, oldest first.
func (j *Journal) Sessions() ([]SessionInfo, error) {
	rows, err := j.db.Query(`
		SELECT session_id,
		       COUNT(*),
		       SUM(CASE WHEN controls_allowed = 1 AND cause = 'rx' THEN 1 ELSE 0 END),
		       SUM(relay_malfunction),
		       MIN(created_at),
		       MAX(created_at)
		FROM engagement_transitions
		GROUP BY session_id
		ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("journal: sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var s SessionInfo
		var first, last string
		if err := rows.Scan(&s.SessionID, &s.Transitions, &s.Engagements, &s.RelayFaults, &first, &last); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		s.First, _ = time.Parse(time.RFC3339Nano, first)
		s.Last, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
