//go:build linux

package canbus

import (
	"context"
	"fmt"

	"github.com/brutella/can"

	"github.com/ppiankov/cangate/internal/model"
)

// SocketCAN is a Port backed by a Linux SocketCAN interface.
type SocketCAN struct {
	name string
	bus  *can.Bus
}

// OpenSocketCAN opens the named interface, e.g. "can0" or "vcan0".
func OpenSocketCAN(name string) (*SocketCAN, error) {
	bus, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, fmt.Errorf("canbus: open %s: %w", name, err)
	}
	return &SocketCAN{name: name, bus: bus}, nil
}

func (s *SocketCAN) Name() string { return s.name }

func (s *SocketCAN) Send(f model.Frame) error {
	if err := s.bus.Publish(toCAN(f)); err != nil {
		return fmt.Errorf("canbus: send on %s: %w", s.name, err)
	}
	return nil
}

func (s *SocketCAN) Run(ctx context.Context, handle func(model.Frame)) error {
	frames := make(chan model.Frame, 256)
	done := make(chan struct{})
	defer close(done)
	s.bus.SubscribeFunc(func(cf can.Frame) {
		select {
		case frames <- fromCAN(cf):
		case <-done:
		}
	})

	errc := make(chan error, 1)
	go func() { errc <- s.bus.ConnectAndPublish() }()

	for {
		select {
		case <-ctx.Done():
			s.bus.Disconnect()
			return ctx.Err()
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("canbus: read %s: %w", s.name, err)
			}
			return ErrClosed
		case f := <-frames:
			handle(f)
		}
	}
}

func (s *SocketCAN) Close() error {
	return s.bus.Disconnect()
}

func toCAN(f model.Frame) can.Frame {
	id := f.Addr
	if f.Extended() {
		id |= effFlag
	}
	return can.Frame{ID: id, Length: f.Len, Data: f.Data}
}

func fromCAN(cf can.Frame) model.Frame {
	f := model.Frame{Len: cf.Length, Data: cf.Data}
	if cf.ID&effFlag != 0 {
		f.Addr = cf.ID & model.MaxExtAddr
	} else {
		f.Addr = cf.ID & model.MaxStdAddr
	}
	if f.Len > model.MaxDataLen {
		f.Len = model.MaxDataLen
	}
	return f
}
