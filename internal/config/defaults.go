package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFabricURL         = "ws://localhost:7113/fabric"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultEventBufferSize   = 16
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultProbeInterval     = 60 * time.Second
	DefaultHealthPort        = 8090
	DefaultHealthPath        = "/health"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *Config) applyDefaults() {
	// Fabric defaults
	if c.Fabric.URL == "" {
		c.Fabric.URL = DefaultFabricURL
	}
	if c.Fabric.ClientID == "" {
		c.Fabric.ClientID = c.Instance.ID
	}
	if c.Fabric.ConnectTimeout == 0 {
		c.Fabric.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Fabric.WriteTimeout == 0 {
		c.Fabric.WriteTimeout = DefaultWriteTimeout
	}
	if c.Fabric.PingInterval == 0 {
		c.Fabric.PingInterval = DefaultPingInterval
	}
	if c.Fabric.PingTimeout == 0 {
		c.Fabric.PingTimeout = DefaultPingTimeout
	}
	if c.Fabric.ReconnectBaseWait == 0 {
		c.Fabric.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Fabric.ReconnectMaxWait == 0 {
		c.Fabric.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Fabric.EventBufferSize == 0 {
		c.Fabric.EventBufferSize = DefaultEventBufferSize
	}

	// Bridge unit defaults
	for i := range c.Bridge.Heartbeats {
		if c.Bridge.Heartbeats[i].Interval == 0 {
			c.Bridge.Heartbeats[i].Interval = DefaultHeartbeatInterval
		}
	}
	for i := range c.Bridge.Probes {
		if c.Bridge.Probes[i].Interval == 0 {
			c.Bridge.Probes[i].Interval = DefaultProbeInterval
		}
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
