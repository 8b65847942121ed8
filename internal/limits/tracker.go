package limits

// Tracker is the applied-value record of one actuator. It is mutated only by
// accepted commands and window rolls, and re-zeroed by Reset.
type Tracker struct {
	Last           int    `json:"last"`
	LastTS         uint32 `json:"last_ts"`
	RTCheckpoint   int    `json:"rt_checkpoint"`
	RTCheckpointTS uint32 `json:"rt_checkpoint_ts"`
}

// ElapsedMicros returns now - last on a free-running 32-bit microsecond timer.
func ElapsedMicros(now, last uint32) uint32 {
	return now - last
}

// Roll starts a new real-time window from the currently applied value once
// more than interval microseconds have passed since the checkpoint. A missed
// window only widens the elapsed interval.
func (t *Tracker) Roll(now, interval uint32) {
	if t.SinceRTCheck(now) > interval {
		t.RTCheckpoint = t.Last
		t.RTCheckpointTS = now
	}
}

// Accept records a newly applied value.
func (t *Tracker) Accept(v int, now uint32) {
	t.Last = v
	t.LastTS = now
}

// Reset zeroes the applied value and restarts the real-time window at now.
func (t *Tracker) Reset(now uint32) {
	t.Last = 0
	t.LastTS = now
	t.RTCheckpoint = 0
	t.RTCheckpointTS = now
}

// SinceRTCheck is the time elapsed since the last real-time checkpoint.
func (t *Tracker) SinceRTCheck(now uint32) uint32 {
	return ElapsedMicros(now, t.RTCheckpointTS)
}
