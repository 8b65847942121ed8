// Package bridge runs the gateway loop between CAN ports, the driving
// computer and an interlock.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ppiankov/cangate/internal/canbus"
	"github.com/ppiankov/cangate/internal/model"
)

// Gate is the decision surface the loop drives. *safety.Interlock
// satisfies it; the server provides a locked, audited one.
type Gate interface {
	Rx(f model.Frame) bool
	Tx(f model.Frame, longitudinalAllowed bool) bool
	Fwd(bus int, f model.Frame) int
}

// Config wires ports to the loop.
type Config struct {
	// Buses holds the car-side port of each bus index; nil entries are unused.
	Buses []canbus.Port
	// Host receives frames the driving computer asks to transmit. Optional.
	Host canbus.Port
	// HostBus is the bus host frames are destined for.
	HostBus uint8
	// LongitudinalAllowed is passed with every host frame.
	LongitudinalAllowed bool
	Logger              *slog.Logger
}

// Stats are running totals of the loop.
type Stats struct {
	Received   uint64 `json:"received"`
	RxInvalid  uint64 `json:"rx_invalid"`
	Forwarded  uint64 `json:"forwarded"`
	TxAllowed  uint64 `json:"tx_allowed"`
	TxDenied   uint64 `json:"tx_denied"`
	SendErrors uint64 `json:"send_errors"`
}

type event struct {
	host  bool
	bus   uint8
	frame model.Frame
}

// Bridge owns the loop. All Gate calls happen on the loop goroutine.
type Bridge struct {
	gate   Gate
	cfg    Config
	log    *slog.Logger
	events chan event

	received, rxInvalid, forwarded  atomic.Uint64
	txAllowed, txDenied, sendErrors atomic.Uint64
}

// New returns a bridge for gate.
func New(gate Gate, cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		gate:   gate,
		cfg:    cfg,
		log:    logger,
		events: make(chan event, 1024),
	}
}

// Run starts every port and processes frames until ctx is done or a port
// fails. Ports are not closed by Run.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, len(b.cfg.Buses)+1)

	start := func(p canbus.Port, host bool, bus uint8) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Run(ctx, func(f model.Frame) {
				select {
				case b.events <- event{host: host, bus: bus, frame: f}:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
			}
		}()
	}
	for i, p := range b.cfg.Buses {
		if p != nil {
			start(p, false, uint8(i))
		}
	}
	if b.cfg.Host != nil {
		start(b.cfg.Host, true, b.cfg.HostBus)
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errc:
			runErr = err
			break loop
		case ev := <-b.events:
			b.handle(ev)
		}
	}
	cancel()
	wg.Wait()
	return runErr
}

func (b *Bridge) handle(ev event) {
	f := ev.frame
	f.Bus = ev.bus
	if ev.host {
		b.transmit(f)
		return
	}
	b.receive(f)
}

func (b *Bridge) receive(f model.Frame) {
	b.received.Add(1)
	if !b.gate.Rx(f) {
		b.rxInvalid.Add(1)
		b.log.Debug("rx invalid", "frame", f.String())
	}
	dst := b.gate.Fwd(int(f.Bus), f)
	if dst == model.NoForward {
		return
	}
	out := f
	out.Bus = uint8(dst)
	if b.send(out) {
		b.forwarded.Add(1)
	}
}

func (b *Bridge) transmit(f model.Frame) {
	if !b.gate.Tx(f, b.cfg.LongitudinalAllowed) {
		b.txDenied.Add(1)
		b.log.Debug("tx denied", "frame", f.String())
		return
	}
	b.txAllowed.Add(1)
	b.send(f)
}

func (b *Bridge) send(f model.Frame) bool {
	if int(f.Bus) >= len(b.cfg.Buses) || b.cfg.Buses[f.Bus] == nil {
		b.sendErrors.Add(1)
		b.log.Warn("no port for bus", "bus", f.Bus, "frame", f.String())
		return false
	}
	if err := b.cfg.Buses[f.Bus].Send(f); err != nil {
		b.sendErrors.Add(1)
		b.log.Warn("send failed", "bus", f.Bus, "frame", f.String(), "err", err)
		return false
	}
	return true
}

// Stats returns a snapshot of the loop counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:   b.received.Load(),
		RxInvalid:  b.rxInvalid.Load(),
		Forwarded:  b.forwarded.Load(),
		TxAllowed:  b.txAllowed.Load(),
		TxDenied:   b.txDenied.Load(),
		SendErrors: b.sendErrors.Load(),
	}
}
