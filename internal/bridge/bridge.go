package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/skaldan/fabriclink/internal/config"
	"github.com/skaldan/fabriclink/internal/coordinator"
)

// unit is one configured consumer behavior hosted by the bridge.
type unit interface {
	name() string
	start(ctx context.Context)
	stop()
}

// Bridge builds the configured units and drives their lifecycle against
// the shared coordinator.
type Bridge struct {
	co     coordinator.Coordinator
	logger *slog.Logger
	units  []unit

	// Last status each unit was told, for diagnostics.
	mu   sync.Mutex
	last map[string]coordinator.Status
}

// New creates a bridge hosting the units described by cfg.
func New(cfg config.BridgeConfig, co coordinator.Coordinator, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		co:     co,
		logger: logger,
		last:   make(map[string]coordinator.Status),
	}
	for _, tc := range cfg.Taps {
		b.units = append(b.units, newTapUnit(tc, co, logger))
	}
	for _, sc := range cfg.Services {
		b.units = append(b.units, newServiceUnit(sc, co, logger))
	}
	for _, hc := range cfg.Heartbeats {
		b.units = append(b.units, newHeartbeatUnit(hc, co, logger))
	}
	for _, pc := range cfg.Probes {
		b.units = append(b.units, newProbeUnit(pc, co, logger))
	}
	return b
}

// Start registers every unit as a coordinator consumer and starts it.
// Registering the first unit brings the shared connection up.
func (b *Bridge) Start(ctx context.Context) error {
	for _, u := range b.units {
		name := u.name()
		b.co.RegisterConsumer(name, b.sinkFor(name))
	}
	for _, u := range b.units {
		u.start(ctx)
	}

	b.logger.Info("bridge started", "units", len(b.units))
	return nil
}

// Stop stops every unit, then unregisters them one by one, waiting for
// each release to finish. The last unit to leave releases the shared
// connection.
func (b *Bridge) Stop(ctx context.Context) error {
	for _, u := range b.units {
		u.stop()
	}
	for _, u := range b.units {
		select {
		case <-b.co.UnregisterConsumer(u.name()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.logger.Info("bridge stopped")
	return nil
}

// UnitStatuses returns the last status each unit has been told.
func (b *Bridge) UnitStatuses() map[string]coordinator.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]coordinator.Status, len(b.last))
	for name, st := range b.last {
		out[name] = st
	}
	return out
}

func (b *Bridge) sinkFor(name string) coordinator.StatusSink {
	return func(st coordinator.Status) {
		b.mu.Lock()
		b.last[name] = st
		b.mu.Unlock()

		b.logger.Info("fabric status",
			"unit", name,
			"status", st.Text,
			"color", st.Color,
		)
	}
}
