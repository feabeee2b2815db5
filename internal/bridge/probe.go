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

// probeUnit periodically sends a request on its topic and logs how long
// the response takes to come back.
type probeUnit struct {
	cfg    config.ProbeConfig
	co     coordinator.Coordinator
	logger *slog.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newProbeUnit(cfg config.ProbeConfig, co coordinator.Coordinator, logger *slog.Logger) *probeUnit {
	return &probeUnit{cfg: cfg, co: co, logger: logger}
}

func (u *probeUnit) name() string { return u.cfg.Name }

func (u *probeUnit) start(ctx context.Context) {
	u.ctx, u.cancel = context.WithCancel(ctx)

	u.wg.Add(1)
	go u.run()

	u.logger.Info("probe started",
		"unit", u.cfg.Name,
		"topic", u.cfg.Topic,
		"interval", u.cfg.Interval,
	)
}

func (u *probeUnit) stop() {
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
}

func (u *probeUnit) run() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-u.ctx.Done():
			return
		case <-ticker.C:
			u.probe()
		}
	}
}

func (u *probeUnit) probe() {
	start := time.Now()
	req := &fabric.Request{
		Topic:   u.cfg.Topic,
		Payload: []byte(u.cfg.Payload),
	}

	err := u.co.SendAsyncRequest(req, func(resp *fabric.Response) {
		u.logger.Info("probe round trip",
			"unit", u.cfg.Name,
			"topic", u.cfg.Topic,
			"rtt", time.Since(start),
			"bytes", len(resp.Payload),
		)
	})
	if err != nil {
		if errors.Is(err, fabric.ErrNotConnected) {
			u.logger.Debug("probe skipped, not connected", "unit", u.cfg.Name)
			return
		}
		u.logger.Warn("probe send", "unit", u.cfg.Name, "error", err)
	}
}
