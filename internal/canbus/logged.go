package canbus

import (
	"context"
	"log/slog"

	"github.com/ppiankov/cangate/internal/model"
)

// LoggedPort wraps a Port and logs traffic at debug level and failures at
// warn level.
type LoggedPort struct {
	Port
	log *slog.Logger
}

// NewLoggedPort decorates p with logger.
func NewLoggedPort(p Port, logger *slog.Logger) *LoggedPort {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedPort{Port: p, log: logger.With("iface", p.Name())}
}

func (p *LoggedPort) Send(f model.Frame) error {
	err := p.Port.Send(f)
	if err != nil {
		p.log.Warn("send failed", "frame", f.String(), "err", err)
		return err
	}
	p.log.Debug("sent", "frame", f.String())
	return nil
}

func (p *LoggedPort) Run(ctx context.Context, handle func(model.Frame)) error {
	p.log.Info("port started")
	err := p.Port.Run(ctx, func(f model.Frame) {
		p.log.Debug("received", "frame", f.String())
		handle(f)
	})
	if err != nil && ctx.Err() == nil {
		p.log.Error("port stopped", "err", err)
	} else {
		p.log.Info("port stopped")
	}
	return err
}
