package coordinator

// Status colors.
const (
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorRed    = "red"
)

// Status shapes.
const (
	ShapeDot  = "dot"
	ShapeRing = "ring"
)

// Status texts.
const (
	TextConnected    = "connected"
	TextConnecting   = "connecting"
	TextDisconnected = "disconnected"
)

// Status is the tuple broadcast to consumer sinks on state transitions.
type Status struct {
	Color string `json:"color"`
	Shape string `json:"shape"`
	Text  string `json:"text"`
}

// The three statuses a consumer can be told.
var (
	StatusConnected    = Status{Color: ColorGreen, Shape: ShapeDot, Text: TextConnected}
	StatusConnecting   = Status{Color: ColorYellow, Shape: ShapeRing, Text: TextConnecting}
	StatusDisconnected = Status{Color: ColorRed, Shape: ShapeRing, Text: TextDisconnected}
)

// StatusSink receives status updates for one registered consumer. Sinks
// run on the coordinator's dispatch goroutine and must not block.
type StatusSink func(Status)
