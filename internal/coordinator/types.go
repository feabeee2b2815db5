package coordinator

import (
	"errors"

	"github.com/hashicorp/go-metrics"
)

// ErrClosing is returned by send and register operations once Teardown
// has been invoked.
var ErrClosing = errors.New("coordinator: teardown in progress")

// State is the coordinator's connection state.
type State int

const (
	// StateIdle means no connection exists and none is being attempted.
	StateIdle State = iota

	// StateConnecting means a connect attempt is in flight.
	StateConnecting

	// StateConnected means the fabric connection is established.
	StateConnected

	// StateDisconnecting means the last consumer left and the connection
	// is being released.
	StateDisconnecting

	// StateClosing means Teardown has begun; the coordinator is done.
	StateClosing
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Stats provides a snapshot of the coordinator for diagnostics.
type Stats struct {
	State     string `json:"state"`
	Consumers int    `json:"consumers"`
}

// Config holds the coordinator configuration.
type Config struct {
	// Name identifies this coordinator in logs and metric labels.
	Name string

	// Sink receives coordinator metrics. Defaults to metrics.Default().
	Sink metrics.MetricSink
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Name: "default"}
}
