package bridge

import (
	"context"
	"log/slog"

	"github.com/skaldan/fabriclink/internal/config"
	"github.com/skaldan/fabriclink/internal/coordinator"
	"github.com/skaldan/fabriclink/internal/fabric"
)

// tapUnit logs every event observed on its topic. An empty topic taps
// all topics.
type tapUnit struct {
	cfg    config.TapConfig
	co     coordinator.Coordinator
	logger *slog.Logger

	// Held so add and remove pass the identical callback value.
	cb fabric.EventCallback
}

func newTapUnit(cfg config.TapConfig, co coordinator.Coordinator, logger *slog.Logger) *tapUnit {
	u := &tapUnit{cfg: cfg, co: co, logger: logger}
	u.cb = u.onEvent
	return u
}

func (u *tapUnit) name() string { return u.cfg.Name }

func (u *tapUnit) start(ctx context.Context) {
	u.co.AddEventCallback(u.cfg.Topic, u.cb)
	u.logger.Info("tap attached", "unit", u.cfg.Name, "topic", u.cfg.Topic)
}

func (u *tapUnit) stop() {
	u.co.RemoveEventCallback(u.cfg.Topic, u.cb)
}

func (u *tapUnit) onEvent(evt *fabric.Event) {
	u.logger.Info("event",
		"unit", u.cfg.Name,
		"topic", evt.Topic,
		"message_id", evt.MessageID,
		"bytes", len(evt.Payload),
	)
}
