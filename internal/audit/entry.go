package audit

import "github.com/ppiankov/cangate/internal/model"

// FrameRecord is the flattened frame recorded in each audit entry.
type FrameRecord struct {
	Bus  uint8  `json:"bus"`
	Addr uint32 `json:"addr"`
	Len  uint8  `json:"len"`
	Data string `json:"data"`
}

// RecordFrame flattens f for logging.
func RecordFrame(f model.Frame) FrameRecord {
	return FrameRecord{Bus: f.Bus, Addr: f.Addr, Len: f.Len, Data: f.HexData()}
}

// Hook names used for entries that are not frame decisions.
const (
	HookSetSafetyMode = "set_safety_mode"
	HookReload        = "reload"
	HookRelay         = "relay_malfunction"
)

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type AuditEntry struct {
	Timestamp       string      `json:"ts"`
	SessionID       string      `json:"session_id"`
	Hook            string      `json:"hook"`
	Frame           FrameRecord `json:"frame"`
	Decision        string      `json:"decision"`
	Dest            *int        `json:"dest,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Mode            string      `json:"mode"`
	ControlsAllowed bool        `json:"controls_allowed"`
	ConfigHash      string      `json:"config_hash"`
	PrevHash        string      `json:"prev_hash"`
}

// Forward builds the Dest pointer for a fwd entry.
func Forward(dest int) *int {
	return &dest
}
