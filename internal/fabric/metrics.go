package fabric

// Metric keys emitted by the fabric client.
var (
	// MetricFramesIn counts frames received from the broker.
	MetricFramesIn = []string{"fabriclink", "fabric", "frames", "in"}

	// MetricFramesOut counts frames written to the broker.
	MetricFramesOut = []string{"fabriclink", "fabric", "frames", "out"}

	// MetricFrameErrors counts frames that failed to parse or dispatch.
	MetricFrameErrors = []string{"fabriclink", "fabric", "frames", "errors"}

	// MetricConnects counts successful connections, initial and re-established.
	MetricConnects = []string{"fabriclink", "fabric", "connects"}

	// MetricDrops counts unexpected connection losses.
	MetricDrops = []string{"fabriclink", "fabric", "drops"}

	// MetricReconnectAttempts counts reconnect dials, successful or not.
	MetricReconnectAttempts = []string{"fabriclink", "fabric", "reconnect", "attempts"}

	// MetricPendingRequests gauges requests awaiting a response.
	MetricPendingRequests = []string{"fabriclink", "fabric", "requests", "pending"}
)
