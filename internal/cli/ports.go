package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/cangate/internal/bridge"
	"github.com/ppiankov/cangate/internal/canbus"
	"github.com/ppiankov/cangate/internal/config"
)

// openPorts opens the SocketCAN interfaces named in cfg and returns a
// bridge configuration plus a function closing every opened port.
func openPorts(cfg config.Bridge, logger *slog.Logger) (bridge.Config, func() error, error) {
	var opened []canbus.Port
	closeAll := func() error {
		var errs []error
		for _, p := range opened {
			errs = append(errs, p.Close())
		}
		return errors.Join(errs...)
	}

	open := func(name string) (canbus.Port, error) {
		p, err := canbus.OpenSocketCAN(name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		opened = append(opened, p)
		return canbus.NewLoggedPort(p, logger), nil
	}

	bc := bridge.Config{
		Buses:               make([]canbus.Port, len(cfg.Buses)),
		LongitudinalAllowed: cfg.LongitudinalAllowed,
		Logger:              logger,
	}
	for i, name := range cfg.Buses {
		if name == "" {
			continue
		}
		p, err := open(name)
		if err != nil {
			closeAll()
			return bridge.Config{}, nil, err
		}
		bc.Buses[i] = p
	}
	if cfg.Host != "" {
		p, err := open(cfg.Host)
		if err != nil {
			closeAll()
			return bridge.Config{}, nil, err
		}
		bc.Host = p
	}
	return bc, closeAll, nil
}
