package fabric

import (
	"errors"
	"time"

	"github.com/hashicorp/go-metrics"
)

// Common errors returned by the fabric client.
var (
	// ErrNotConnected is returned when a send is attempted while the
	// WebSocket link to the broker is down.
	ErrNotConnected = errors.New("fabric: not connected")

	// ErrDestroyed is returned once Destroy has been called; the client
	// cannot be revived afterwards.
	ErrDestroyed = errors.New("fabric: client destroyed")

	// ErrStaleConnection indicates the broker stopped answering pings
	// within the configured timeout.
	ErrStaleConnection = errors.New("fabric: stale connection (no pong)")

	// ErrInvalidRegistration is returned by RegisterService for a
	// registration with no service type or no topic handlers.
	ErrInvalidRegistration = errors.New("fabric: invalid service registration")

	// errDialSuperseded is returned by dial when a Connect, Disconnect or
	// Destroy raced ahead of the attempt and made its result unwanted.
	errDialSuperseded = errors.New("fabric: dial superseded")
)

// StateEvent is a connection-state notification delivered on the channel
// returned by Client.Events.
type StateEvent int

const (
	// StateConnected is emitted after the initial connect and after every
	// successful reconnect.
	StateConnected StateEvent = iota

	// StateReconnecting is emitted once per reconnect attempt while the
	// client tries to restore a dropped connection.
	StateReconnecting

	// StateClosed is emitted when the connection is closed, either by
	// Disconnect, by a failed initial connect, or after the reconnect
	// attempts are exhausted.
	StateClosed
)

// String returns a human-readable name for the state event.
func (s StateEvent) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a fire-and-forget message published to a topic. Every
// subscriber of the topic receives its own copy.
type Event struct {
	// Topic the event is published to.
	Topic string

	// MessageID uniquely identifies the message on the fabric. Filled
	// with a fresh UUID by SendEvent when empty.
	MessageID string

	// Payload is the opaque application body.
	Payload []byte
}

// Request is a message addressed to a service topic. The broker routes it
// to exactly one service instance, which answers with a Response.
type Request struct {
	// Topic identifies the service operation being invoked.
	Topic string

	// MessageID uniquely identifies the request and correlates the
	// eventual response. Filled with a fresh UUID by SendRequest when
	// empty.
	MessageID string

	// ReplyTo is the topic the response must be published to. SendRequest
	// fills it with the client's private reply topic when empty.
	ReplyTo string

	// Payload is the opaque application body.
	Payload []byte
}

// Response answers a Request. It travels on the reply topic named by the
// request and carries the originating request's message ID.
type Response struct {
	// Topic is the reply topic the response is published to. When
	// constructing a response from a request, set it to the request's
	// ReplyTo.
	Topic string

	// MessageID uniquely identifies the response message. Filled with a
	// fresh UUID by SendResponse when empty.
	MessageID string

	// RequestMessageID is the MessageID of the request being answered.
	RequestMessageID string

	// Payload is the opaque application body.
	Payload []byte
}

// EventCallback receives events for a subscribed topic. Callbacks run on
// the client's read loop and must not block.
type EventCallback func(*Event)

// ResponseHandler receives the response to an asynchronous request.
// Handlers run on the client's read loop and must not block.
type ResponseHandler func(*Response)

// RequestHandler serves incoming requests for a registered service topic.
// Handlers run on the client's read loop and must not block; answer by
// calling SendResponse from another goroutine if the work is slow.
type RequestHandler func(*Request)

// ServiceRegistration describes a service to expose on the fabric: a
// service type plus one request handler per topic the service answers on.
type ServiceRegistration struct {
	// ServiceType names the kind of service, for example
	// "/fabriclink/service/echo".
	ServiceType string

	// Metadata is an optional set of free-form properties announced with
	// the registration.
	Metadata map[string]string

	// TopicHandlers maps each request topic the service answers on to its
	// handler.
	TopicHandlers map[string]RequestHandler
}

// ServiceHandle identifies one registered service instance. Treat it as
// opaque: pass it unchanged to UnregisterService.
type ServiceHandle struct {
	InstanceID  string `json:"instance_id"`
	ServiceType string `json:"service_type"`
}

// Frame operation codes used on the wire.
const (
	opEvent             = "event"
	opRequest           = "request"
	opResponse          = "response"
	opSubscribe         = "subscribe"
	opUnsubscribe       = "unsubscribe"
	opServiceRegister   = "service_register"
	opServiceUnregister = "service_unregister"
)

// topicWildcard is the broker-side subscription that matches every topic.
const topicWildcard = "#"

// frame is the JSON envelope every fabric message travels in.
type frame struct {
	Op               string            `json:"op"`
	Topic            string            `json:"topic,omitempty"`
	MessageID        string            `json:"message_id,omitempty"`
	ReplyTo          string            `json:"reply_to,omitempty"`
	RequestMessageID string            `json:"request_message_id,omitempty"`
	ServiceType      string            `json:"service_type,omitempty"`
	InstanceID       string            `json:"instance_id,omitempty"`
	Topics           []string          `json:"topics,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Payload          []byte            `json:"payload,omitempty"`
}

// ClientConfig holds the fabric client configuration.
type ClientConfig struct {
	// URL is the broker WebSocket URL, e.g. wss://broker:8883/fabric.
	URL string

	// ClientID uniquely identifies this client on the fabric. The private
	// reply topic is derived from it. A random ID is generated when empty.
	ClientID string

	// ConnectTimeout bounds the WebSocket handshake.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// PingInterval is how often keepalive pings are sent. Zero disables
	// them.
	PingInterval time.Duration

	// PingTimeout is how long to wait for broker traffic before declaring
	// the connection stale.
	PingTimeout time.Duration

	// ReconnectBaseWait is the initial delay between reconnect attempts.
	// The delay doubles after each failure up to ReconnectMaxWait.
	ReconnectBaseWait time.Duration

	// ReconnectMaxWait caps the reconnect delay.
	ReconnectMaxWait time.Duration

	// MaxReconnects limits consecutive failed reconnect attempts before
	// the client gives up and emits StateClosed. Zero means no limit.
	MaxReconnects int

	// EventBufferSize is the capacity of the state-event channel.
	EventBufferSize int

	// Sink receives client metrics. Defaults to metrics.Default().
	Sink metrics.MetricSink
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout:    10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       60 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		MaxReconnects:     0,
		EventBufferSize:   16,
	}
}
