// Package canbus connects the interlock to CAN interfaces: SocketCAN ports,
// an in-memory loopback for tests, and candump log files.
package canbus

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/cangate/internal/model"
)

// effFlag marks a 29-bit identifier in a SocketCAN frame id.
const effFlag = 0x80000000

// ErrClosed is returned by operations on a closed port.
var ErrClosed = errors.New("canbus: port closed")

// Port is one CAN interface.
type Port interface {
	// Name identifies the interface, e.g. "can0".
	Name() string
	// Send transmits a frame. The frame's Bus field is ignored.
	Send(f model.Frame) error
	// Run delivers received frames to handle until ctx is done or the port
	// fails. handle is called from a single goroutine.
	Run(ctx context.Context, handle func(model.Frame)) error
	Close() error
}

// Loopback is an in-memory Port. Frames passed to Inject are delivered by
// Run; frames passed to Send are recorded.
type Loopback struct {
	name string
	in   chan model.Frame

	mu     sync.Mutex
	sent   []model.Frame
	closed bool
	done   chan struct{}
}

// NewLoopback returns a loopback port with a receive buffer of size.
func NewLoopback(name string, size int) *Loopback {
	return &Loopback{
		name: name,
		in:   make(chan model.Frame, size),
		done: make(chan struct{}),
	}
}

func (l *Loopback) Name() string { return l.name }

// Inject queues a frame as if it had been received. It blocks while the
// buffer is full.
func (l *Loopback) Inject(f model.Frame) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case <-l.done:
		return ErrClosed
	case l.in <- f:
		return nil
	}
}

func (l *Loopback) Send(f model.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.sent = append(l.sent, f)
	return nil
}

// Sent returns a copy of every frame sent so far.
func (l *Loopback) Sent() []model.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Frame, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *Loopback) Run(ctx context.Context, handle func(model.Frame)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case f := <-l.in:
			handle(f)
		}
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}
