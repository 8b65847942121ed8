package safety

import "github.com/ppiankov/cangate/internal/model"

// MaxMissedMsgs is how many expected periods may pass before an address is
// reported as lagging.
const MaxMissedMsgs = 10

// maxAltMsgs bounds the alternative definitions per AddrCheck.
const maxAltMsgs = 3

// MsgCheck describes one accepted shape of an inbound message.
type MsgCheck struct {
	Addr          uint32
	Bus           uint8
	Len           uint8
	CheckChecksum bool
	// ExpectedTimestep is the nominal period in microseconds.
	ExpectedTimestep uint32
}

// AddrCheck groups up to three alternative definitions of one logical
// message (e.g. two platforms sending the same signal on different ids).
type AddrCheck struct {
	Msgs []MsgCheck

	matched          int
	seen             bool
	lastTS           uint32
	lagging          bool
	checksumFailures uint64
}

// NewAddrCheck builds an entry from its alternatives. Extra alternatives
// beyond three are ignored.
func NewAddrCheck(msgs ...MsgCheck) AddrCheck {
	if len(msgs) > maxAltMsgs {
		msgs = msgs[:maxAltMsgs]
	}
	return AddrCheck{Msgs: msgs}
}

// ChecksumFunc extracts a checksum from a frame.
type ChecksumFunc func(model.Frame) uint8

// LastByteChecksum reads the checksum carried in the last payload byte.
func LastByteChecksum(f model.Frame) uint8 {
	if f.Len == 0 {
		return 0
	}
	return f.Data[f.Len-1]
}

// AddrChecks is the rx validity rule set returned by a variant's Init.
// A nil or empty set accepts every frame.
type AddrChecks struct {
	Checks []AddrCheck
	// Checksum computes the expected checksum.
	Checksum ChecksumFunc
	// Received reads the transmitted checksum; nil means LastByteChecksum.
	Received ChecksumFunc
}

// AddrStatus reports liveness of one AddrCheck.
type AddrStatus struct {
	Addr             uint32 `json:"addr"`
	Bus              uint8  `json:"bus"`
	Seen             bool   `json:"seen"`
	Lagging          bool   `json:"lagging"`
	LastTS           uint32 `json:"last_ts"`
	ChecksumFailures uint64 `json:"checksum_failures"`
}

// find returns the index of the entry and alternative matching f, or -1, -1.
func (a *AddrChecks) find(f model.Frame) (int, int) {
	for i := range a.Checks {
		for j, m := range a.Checks[i].Msgs {
			if m.Addr == f.Addr && m.Bus == f.Bus && m.Len == f.Len {
				return i, j
			}
		}
	}
	return -1, -1
}

// Validate records the arrival of f and reports whether it passes its
// checksum. Frames not listed in the set are valid.
func (a *AddrChecks) Validate(f model.Frame, now uint32) bool {
	if a == nil {
		return true
	}
	i, j := a.find(f)
	if i < 0 {
		return true
	}
	c := &a.Checks[i]
	c.matched = j
	c.seen = true
	c.lastTS = now
	c.lagging = false

	if c.Msgs[j].CheckChecksum && a.Checksum != nil && f.Len > 0 {
		received := a.Received
		if received == nil {
			received = LastByteChecksum
		}
		if a.Checksum(f) != received(f) {
			c.checksumFailures++
			return false
		}
	}
	return true
}

// UpdateLagging marks entries that have not been seen for MaxMissedMsgs
// expected periods.
func (a *AddrChecks) UpdateLagging(now uint32) {
	if a == nil {
		return
	}
	for i := range a.Checks {
		c := &a.Checks[i]
		if !c.seen || len(c.Msgs) == 0 {
			continue
		}
		m := c.Msgs[c.matched]
		if m.ExpectedTimestep == 0 {
			continue
		}
		c.lagging = now-c.lastTS > m.ExpectedTimestep*MaxMissedMsgs
	}
}

// Lagging reports whether any seen entry is lagging.
func (a *AddrChecks) Lagging() bool {
	if a == nil {
		return false
	}
	for _, c := range a.Checks {
		if c.lagging {
			return true
		}
	}
	return false
}

// Status returns one AddrStatus per entry, using the alternative last matched.
func (a *AddrChecks) Status() []AddrStatus {
	if a == nil {
		return nil
	}
	out := make([]AddrStatus, 0, len(a.Checks))
	for _, c := range a.Checks {
		if len(c.Msgs) == 0 {
			continue
		}
		m := c.Msgs[c.matched]
		out = append(out, AddrStatus{
			Addr:             m.Addr,
			Bus:              m.Bus,
			Seen:             c.seen,
			Lagging:          c.lagging,
			LastTS:           c.lastTS,
			ChecksumFailures: c.checksumFailures,
		})
	}
	return out
}
