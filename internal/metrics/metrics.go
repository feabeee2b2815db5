package metrics

import (
	"fmt"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

const (
	// Aggregation interval for the in-memory sink.
	interval = 10 * time.Second

	// How much history the sink retains.
	retain = time.Minute
)

var installed *gometrics.InmemSink

// Install makes an in-memory sink the process-wide metric destination.
// serviceName is prepended to every metric key.
func Install(serviceName string) error {
	sink := gometrics.NewInmemSink(interval, retain)

	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false

	if _, err := gometrics.NewGlobal(cfg, sink); err != nil {
		return fmt.Errorf("install metric sink: %w", err)
	}

	installed = sink
	return nil
}

// Snapshot flattens the sink's current interval into counter and gauge
// maps keyed by dotted metric name. Returns nil before Install.
func Snapshot() map[string]interface{} {
	if installed == nil {
		return nil
	}

	data := installed.Data()
	if len(data) == 0 {
		return nil
	}
	current := data[len(data)-1]

	current.RLock()
	defer current.RUnlock()

	counters := make(map[string]int, len(current.Counters))
	for name, v := range current.Counters {
		counters[name] = v.Count
	}
	gauges := make(map[string]float32, len(current.Gauges))
	for name, v := range current.Gauges {
		gauges[name] = v.Value
	}

	return map[string]interface{}{
		"interval": current.Interval,
		"counters": counters,
		"gauges":   gauges,
	}
}
