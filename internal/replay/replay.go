// Package replay runs a recorded candump log through an interlock, using
// the log's own timestamps as the interlock clock.
package replay

import (
	"time"

	"github.com/ppiankov/cangate/internal/canbus"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
)

// Options selects the variant and how log lines map onto interlock calls.
type Options struct {
	Table safety.Table
	Mode  safety.Mode
	Param int16
	// Buses maps car-side interfaces to bus indices.
	Buses canbus.BusMap
	// Host is the interface whose frames are treated as transmit requests.
	Host string
	// HostBus is the bus host frames are destined for.
	HostBus uint8
	// LongitudinalAllowed is passed with every host frame.
	LongitudinalAllowed bool
}

// Decision is one non-trivial outcome worth reporting.
type Decision struct {
	Line     int    `json:"line"`
	AtUS     uint32 `json:"at_us"`
	Hook     string `json:"hook"`
	Frame    string `json:"frame"`
	Decision string `json:"decision"`
}

// Result summarizes a replay.
type Result struct {
	Frames      int                 `json:"frames"`
	Skipped     int                 `json:"skipped"`
	Status      safety.Status       `json:"status"`
	Denied      []Decision          `json:"denied"`
	Transitions []safety.Transition `json:"transitions"`
}

// Run replays frames through a fresh interlock in opts.Mode. Frames on
// unmapped interfaces are skipped. Receive frames that fail validity and
// every denied transmit are listed in the result.
func Run(frames []canbus.LogFrame, opts Options) (*Result, error) {
	res := &Result{}
	var now uint32
	il := safety.NewInterlock(opts.Table,
		safety.WithClock(func() uint32 { return now }),
		safety.WithObserver(func(tr safety.Transition) {
			res.Transitions = append(res.Transitions, tr)
		}),
	)
	if err := il.SetSafetyMode(opts.Mode, opts.Param); err != nil {
		return nil, err
	}

	var start time.Time
	if len(frames) > 0 {
		start = frames[0].Time
	}
	deny := func(line int, hook model.HookKind, f model.Frame) {
		res.Denied = append(res.Denied, Decision{
			Line: line, AtUS: now, Hook: string(hook),
			Frame: f.String(), Decision: string(model.Deny),
		})
	}

	for i, lf := range frames {
		now = uint32(lf.Time.Sub(start).Microseconds())
		f := lf.Frame

		if opts.Host != "" && lf.Iface == opts.Host {
			f.Bus = opts.HostBus
			res.Frames++
			if !il.Tx(f, opts.LongitudinalAllowed) {
				deny(i+1, model.HookTx, f)
			}
			continue
		}

		bus, ok := opts.Buses.Bus(lf.Iface)
		if !ok {
			res.Skipped++
			continue
		}
		f.Bus = bus
		res.Frames++
		if !il.Rx(f) {
			deny(i+1, model.HookRx, f)
		}
		il.Fwd(int(f.Bus), f)
	}
	res.Status = il.Status()
	return res, nil
}
