package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skaldan/fabriclink/internal/config"
	"github.com/skaldan/fabriclink/internal/coordinator"
	"github.com/skaldan/fabriclink/internal/fabric"
)

// heartbeatUnit publishes a fixed event on its topic at every interval.
type heartbeatUnit struct {
	cfg    config.HeartbeatConfig
	co     coordinator.Coordinator
	logger *slog.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHeartbeatUnit(cfg config.HeartbeatConfig, co coordinator.Coordinator, logger *slog.Logger) *heartbeatUnit {
	return &heartbeatUnit{cfg: cfg, co: co, logger: logger}
}

func (u *heartbeatUnit) name() string { return u.cfg.Name }

func (u *heartbeatUnit) start(ctx context.Context) {
	u.ctx, u.cancel = context.WithCancel(ctx)

	u.wg.Add(1)
	go u.run()

	u.logger.Info("heartbeat started",
		"unit", u.cfg.Name,
		"topic", u.cfg.Topic,
		"interval", u.cfg.Interval,
	)
}

func (u *heartbeatUnit) stop() {
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
}

func (u *heartbeatUnit) run() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-u.ctx.Done():
			return
		case <-ticker.C:
			u.beat()
		}
	}
}

func (u *heartbeatUnit) beat() {
	evt := &fabric.Event{
		Topic:   u.cfg.Topic,
		Payload: []byte(u.cfg.Payload),
	}
	if err := u.co.SendEvent(evt); err != nil {
		if errors.Is(err, fabric.ErrNotConnected) {
			u.logger.Debug("heartbeat skipped, not connected", "unit", u.cfg.Name)
			return
		}
		u.logger.Warn("heartbeat send", "unit", u.cfg.Name, "error", err)
		return
	}
	u.logger.Debug("heartbeat sent", "unit", u.cfg.Name, "topic", u.cfg.Topic)
}
