// Package config loads and validates the bridge daemon configuration
// from YAML files with environment variable substitution.
package config

import "time"

// Config is the root configuration for the fabric bridge daemon.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Fabric   FabricConfig   `yaml:"fabric"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Health   HealthConfig   `yaml:"health"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this bridge instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FabricConfig controls the connection to the fabric broker.
type FabricConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	EventBufferSize   int           `yaml:"event_buffer_size"`
}

// BridgeConfig lists the consumer units the bridge hosts. Unit names
// become coordinator consumer ids and must be unique across all sections.
type BridgeConfig struct {
	Taps       []TapConfig       `yaml:"taps"`
	Services   []ServiceConfig   `yaml:"services"`
	Heartbeats []HeartbeatConfig `yaml:"heartbeats"`
	Probes     []ProbeConfig     `yaml:"probes"`
}

// TapConfig configures a unit that logs events observed on a topic.
// An empty topic taps every topic.
type TapConfig struct {
	Name  string `yaml:"name"`
	Topic string `yaml:"topic"`
}

// ServiceConfig configures a unit that answers requests on a set of
// topics with fixed payloads.
type ServiceConfig struct {
	Name        string            `yaml:"name"`
	ServiceType string            `yaml:"service_type"`
	Topics      map[string]string `yaml:"topics"`
}

// HeartbeatConfig configures a unit that publishes an event periodically.
type HeartbeatConfig struct {
	Name     string        `yaml:"name"`
	Topic    string        `yaml:"topic"`
	Payload  string        `yaml:"payload"`
	Interval time.Duration `yaml:"interval"`
}

// ProbeConfig configures a unit that periodically issues a request and
// logs the round-trip time of the response.
type ProbeConfig struct {
	Name     string        `yaml:"name"`
	Topic    string        `yaml:"topic"`
	Payload  string        `yaml:"payload"`
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig controls the diagnostic HTTP endpoint.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
