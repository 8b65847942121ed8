//go:build !linux

package canbus

import (
	"context"
	"errors"

	"github.com/ppiankov/cangate/internal/model"
)

// ErrUnsupported is returned where SocketCAN is unavailable.
var ErrUnsupported = errors.New("canbus: SocketCAN requires linux")

// SocketCAN is unavailable on this platform.
type SocketCAN struct{ name string }

// OpenSocketCAN always fails on this platform.
func OpenSocketCAN(name string) (*SocketCAN, error) {
	return nil, ErrUnsupported
}

func (s *SocketCAN) Name() string { return s.name }

func (s *SocketCAN) Send(model.Frame) error { return ErrUnsupported }

func (s *SocketCAN) Run(context.Context, func(model.Frame)) error { return ErrUnsupported }

func (s *SocketCAN) Close() error { return nil }
