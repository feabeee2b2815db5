package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Fabric.URL == "" {
		return errors.New("fabric.url is required")
	}
	if c.Fabric.MaxReconnects < 0 {
		return errors.New("fabric.max_reconnects must be >= 0")
	}
	if c.Fabric.EventBufferSize < 1 {
		return errors.New("fabric.event_buffer_size must be >= 1")
	}
	if c.Fabric.ReconnectBaseWait > c.Fabric.ReconnectMaxWait {
		return fmt.Errorf("fabric.reconnect_base_wait (%v) cannot exceed reconnect_max_wait (%v)",
			c.Fabric.ReconnectBaseWait, c.Fabric.ReconnectMaxWait)
	}

	// Unit names become coordinator consumer ids, so they must be unique.
	seen := make(map[string]bool)
	for _, tap := range c.Bridge.Taps {
		if err := claimUnitName(seen, "bridge.taps", tap.Name); err != nil {
			return err
		}
	}
	for _, svc := range c.Bridge.Services {
		if err := claimUnitName(seen, "bridge.services", svc.Name); err != nil {
			return err
		}
		if svc.ServiceType == "" {
			return fmt.Errorf("bridge.services[%s].service_type is required", svc.Name)
		}
		if len(svc.Topics) == 0 {
			return fmt.Errorf("bridge.services[%s].topics must not be empty", svc.Name)
		}
	}
	for _, hb := range c.Bridge.Heartbeats {
		if err := claimUnitName(seen, "bridge.heartbeats", hb.Name); err != nil {
			return err
		}
		if hb.Topic == "" {
			return fmt.Errorf("bridge.heartbeats[%s].topic is required", hb.Name)
		}
		if hb.Interval <= 0 {
			return fmt.Errorf("bridge.heartbeats[%s].interval must be positive", hb.Name)
		}
	}
	for _, pr := range c.Bridge.Probes {
		if err := claimUnitName(seen, "bridge.probes", pr.Name); err != nil {
			return err
		}
		if pr.Topic == "" {
			return fmt.Errorf("bridge.probes[%s].topic is required", pr.Name)
		}
		if pr.Interval <= 0 {
			return fmt.Errorf("bridge.probes[%s].interval must be positive", pr.Name)
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func claimUnitName(seen map[string]bool, section, name string) error {
	if name == "" {
		return fmt.Errorf("%s: name is required", section)
	}
	if seen[name] {
		return fmt.Errorf("duplicate bridge unit name %q", name)
	}
	seen[name] = true
	return nil
}
