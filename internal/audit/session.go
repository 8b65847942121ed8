package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/cangate/internal/model"
)

// SessionFilter holds filtering criteria for a session read-back.
type SessionFilter struct {
	SessionID string
	Hook      string    // empty = every hook
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// SessionSummary holds decision counts for a session.
type SessionSummary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	DenyCount      int    `json:"deny_count"`
	RxInvalid      int    `json:"rx_invalid"`
	TxDenied       int    `json:"tx_denied"`
	Forwarded      int    `json:"forwarded"`
	ModeChanges    int    `json:"mode_changes"`
	Engaged        bool   `json:"engaged"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// SessionResult holds filtered entries and summary for one session.
type SessionResult struct {
	SessionID string         `json:"session_id"`
	Entries   []AuditEntry   `json:"entries"`
	Summary   SessionSummary `json:"summary"`
}

// Session reads the audit log and returns entries matching the filter.
func Session(path string, filter SessionFilter) (*SessionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &SessionResult{SessionID: filter.SessionID}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		if filter.SessionID != "" && entry.SessionID != filter.SessionID {
			continue
		}
		if filter.Hook != "" && entry.Hook != filter.Hook {
			continue
		}
		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil {
				continue
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}

// Tail returns the last n parseable entries of the log.
func Tail(path string, n int) ([]AuditEntry, error) {
	res, err := Session(path, SessionFilter{})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(res.Entries) > n {
		return res.Entries[len(res.Entries)-n:], nil
	}
	return res.Entries, nil
}

func updateSummary(s *SessionSummary, entry AuditEntry) {
	s.Total++

	switch model.Decision(entry.Decision) {
	case model.Allow:
		s.AllowCount++
	case model.Deny:
		s.DenyCount++
	}

	switch entry.Hook {
	case string(model.HookRx):
		if entry.Decision == string(model.Deny) {
			s.RxInvalid++
		}
	case string(model.HookTx), string(model.HookTxLin):
		if entry.Decision == string(model.Deny) {
			s.TxDenied++
		}
	case string(model.HookFwd):
		if entry.Dest != nil && *entry.Dest != model.NoForward {
			s.Forwarded++
		}
	case HookSetSafetyMode, HookReload:
		s.ModeChanges++
	}
	s.Engaged = entry.ControlsAllowed

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
