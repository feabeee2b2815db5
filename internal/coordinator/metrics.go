package coordinator

import "github.com/hashicorp/go-metrics"

// Metric keys emitted by the coordinator.
var (
	// MetricConsumers gauges the number of registered consumers.
	MetricConsumers = []string{"fabriclink", "coordinator", "consumers"}

	// MetricConnects counts connection-established transitions.
	MetricConnects = []string{"fabriclink", "coordinator", "connects"}

	// MetricDisconnects counts connection-closed transitions.
	MetricDisconnects = []string{"fabriclink", "coordinator", "disconnects"}

	// MetricStatusBroadcasts counts sink invocations during broadcasts.
	MetricStatusBroadcasts = []string{"fabriclink", "coordinator", "status", "broadcasts"}

	// MetricEventsOut counts events accepted by SendEvent.
	MetricEventsOut = []string{"fabriclink", "coordinator", "events", "out"}

	// MetricRequestsOut counts requests accepted by SendAsyncRequest.
	MetricRequestsOut = []string{"fabriclink", "coordinator", "requests", "out"}

	// MetricResponsesOut counts responses accepted by SendResponse.
	MetricResponsesOut = []string{"fabriclink", "coordinator", "responses", "out"}
)

// coordinatorLabels returns the label set identifying one coordinator
// instance in metrics.
func coordinatorLabels(name string) []metrics.Label {
	return []metrics.Label{{Name: "coordinator", Value: name}}
}
