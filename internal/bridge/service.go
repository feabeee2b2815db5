package bridge

import (
	"context"
	"log/slog"

	"github.com/skaldan/fabriclink/internal/config"
	"github.com/skaldan/fabriclink/internal/coordinator"
	"github.com/skaldan/fabriclink/internal/fabric"
)

// serviceUnit exposes a fabric service whose handlers answer each
// request with the payload configured for its topic.
type serviceUnit struct {
	cfg    config.ServiceConfig
	co     coordinator.Coordinator
	logger *slog.Logger

	handle *fabric.ServiceHandle
}

func newServiceUnit(cfg config.ServiceConfig, co coordinator.Coordinator, logger *slog.Logger) *serviceUnit {
	return &serviceUnit{cfg: cfg, co: co, logger: logger}
}

func (u *serviceUnit) name() string { return u.cfg.Name }

func (u *serviceUnit) start(ctx context.Context) {
	handlers := make(map[string]fabric.RequestHandler, len(u.cfg.Topics))
	for topic, payload := range u.cfg.Topics {
		handlers[topic] = u.answerWith([]byte(payload))
	}

	handle, err := u.co.RegisterService(u.cfg.ServiceType, handlers)
	if err != nil {
		u.logger.Error("register service",
			"unit", u.cfg.Name,
			"service_type", u.cfg.ServiceType,
			"error", err,
		)
		return
	}
	u.handle = handle

	u.logger.Info("service registered",
		"unit", u.cfg.Name,
		"service_type", u.cfg.ServiceType,
		"topics", len(handlers),
	)
}

func (u *serviceUnit) stop() {
	if u.handle == nil {
		return
	}
	if err := u.co.UnregisterService(u.handle); err != nil {
		u.logger.Warn("unregister service", "unit", u.cfg.Name, "error", err)
	}
	u.handle = nil
}

func (u *serviceUnit) answerWith(payload []byte) fabric.RequestHandler {
	return func(req *fabric.Request) {
		resp := &fabric.Response{
			Topic:            req.ReplyTo,
			RequestMessageID: req.MessageID,
			Payload:          payload,
		}
		if err := u.co.SendResponse(resp); err != nil {
			u.logger.Warn("answer request",
				"unit", u.cfg.Name,
				"topic", req.Topic,
				"error", err,
			)
		}
	}
}
