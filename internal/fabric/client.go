package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-metrics"
)

// Client represents a single client connection to the messaging fabric.
type Client interface {
	// Connect establishes the WebSocket connection to the broker.
	Connect(ctx context.Context) error

	// Disconnect closes the connection without destroying the client; a
	// later Connect re-establishes it. onComplete, when non-nil, runs
	// once the connection has fully closed.
	Disconnect(onComplete func())

	// Destroy permanently shuts the client down and closes the Events
	// channel. The client cannot be revived afterwards. Destroy must not
	// be called from a message callback.
	Destroy() error

	// Events returns the connection-state notification channel. Only
	// Destroy closes it.
	Events() <-chan StateEvent

	// IsConnected reports whether the link to the broker is up.
	IsConnected() bool

	// Subscribe registers cb for events published to topic. The empty
	// topic subscribes to all topics. Safe to call while disconnected;
	// subscriptions are replayed on every connect.
	Subscribe(topic string, cb EventCallback)

	// Unsubscribe removes a callback previously passed to Subscribe for
	// the same topic. Unknown callbacks are ignored.
	Unsubscribe(topic string, cb EventCallback)

	// SendEvent publishes evt to its topic.
	SendEvent(evt *Event) error

	// SendRequest sends req and registers cb to receive the response. A
	// nil cb sends the request without tracking a response.
	SendRequest(req *Request, cb ResponseHandler) error

	// SendResponse publishes resp to the reply topic named in it.
	SendResponse(resp *Response) error

	// RegisterService exposes a service on the fabric and returns a
	// handle for unregistering it.
	RegisterService(reg ServiceRegistration) (*ServiceHandle, error)

	// UnregisterService removes a registration made by RegisterService.
	// Unknown handles are ignored.
	UnregisterService(handle *ServiceHandle) error
}

// subscription pairs a callback with its code pointer so Unsubscribe can
// find it again; func values are not comparable directly.
type subscription struct {
	cb  EventCallback
	ptr uintptr
}

func callbackPtr(cb EventCallback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}

// serviceEntry tracks one registered service instance.
type serviceEntry struct {
	reg    ServiceRegistration
	handle *ServiceHandle
}

// wsClient implements the Client interface.
type wsClient struct {
	cfg    ClientConfig
	logger *slog.Logger
	sink   metrics.MetricSink

	replyTopic string

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	connDone   chan struct{}
	connGen    int
	connected  bool
	userClosed bool
	destroyed  bool
	lastPongAt time.Time

	// Topic subscriptions
	subMu sync.Mutex
	subs  map[string][]subscription

	// Request/response correlation
	pendingMu sync.Mutex
	pending   map[string]ResponseHandler

	// Registered services
	svcMu    sync.Mutex
	services map[string]*serviceEntry

	// State notifications
	events  chan StateEvent
	stateCh chan StateEvent

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient creates a new fabric client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = metrics.Default()
	}

	c := &wsClient{
		cfg:        cfg,
		logger:     logger.With("client_id", cfg.ClientID),
		sink:       sink,
		replyTopic: "/fabriclink/client/" + cfg.ClientID + "/reply",
		subs:       make(map[string][]subscription),
		pending:    make(map[string]ResponseHandler),
		services:   make(map[string]*serviceEntry),
		events:     make(chan StateEvent, cfg.EventBufferSize),
		stateCh:    make(chan StateEvent, cfg.EventBufferSize),
		done:       make(chan struct{}),
	}

	c.wg.Add(1)
	go c.notifyLoop()

	return c
}

// Connect establishes the WebSocket connection. Callers serialize their
// use of Connect; the connection coordinator keeps one attempt in flight.
func (c *wsClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.userClosed = false
	c.connGen++
	gen := c.connGen
	c.mu.Unlock()

	if err := c.dial(ctx, gen); err != nil {
		// Connect failures surface on the notification channel too, the
		// same way an unexpected close does.
		c.emit(StateClosed)
		return err
	}

	c.replayState()
	c.emit(StateConnected)
	return nil
}

// Disconnect closes the connection, leaving the client reusable.
func (c *wsClient) Disconnect(onComplete func()) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		if onComplete != nil {
			onComplete()
		}
		return
	}
	c.userClosed = true
	wasConnected := c.connected
	c.connected = false
	conn := c.conn
	connDone := c.connDone
	c.conn = nil
	c.connDone = nil
	c.mu.Unlock()

	if connDone != nil {
		close(connDone)
	}
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	if wasConnected {
		c.logger.Debug("websocket disconnected")
		c.emit(StateClosed)
	}

	if onComplete != nil {
		onComplete()
	}
}

// Destroy permanently shuts the client down. The Events channel closes
// once all internal goroutines have stopped.
func (c *wsClient) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.connected = false
	conn := c.conn
	connDone := c.connDone
	c.conn = nil
	c.connDone = nil
	c.mu.Unlock()

	close(c.done)

	if connDone != nil {
		close(connDone)
	}
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	c.wg.Wait()

	c.logger.Debug("client destroyed")
	return nil
}

// Events returns the state-notification channel.
func (c *wsClient) Events() <-chan StateEvent {
	return c.events
}

// IsConnected returns the current connection state.
func (c *wsClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Subscribe registers cb for events on topic. The first callback for a
// topic also subscribes it at the broker; later callbacks share that
// subscription. Callbacks run on the read loop and must not block.
func (c *wsClient) Subscribe(topic string, cb EventCallback) {
	if cb == nil {
		return
	}

	c.subMu.Lock()
	c.subs[topic] = append(c.subs[topic], subscription{cb: cb, ptr: callbackPtr(cb)})
	first := len(c.subs[topic]) == 1
	c.subMu.Unlock()

	if !first || !c.IsConnected() {
		return
	}
	if err := c.writeFrame(&frame{Op: opSubscribe, Topic: wireTopic(topic)}); err != nil {
		c.logger.Warn("failed to subscribe", "topic", topic, "error", err)
	}
}

// Unsubscribe removes the callback registered for topic. The broker
// subscription is dropped when the last callback for the topic goes.
func (c *wsClient) Unsubscribe(topic string, cb EventCallback) {
	if cb == nil {
		return
	}
	ptr := callbackPtr(cb)

	c.subMu.Lock()
	list := c.subs[topic]
	found := false
	for i, sub := range list {
		if sub.ptr == ptr {
			list = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		c.subMu.Unlock()
		return
	}
	empty := len(list) == 0
	if empty {
		delete(c.subs, topic)
	} else {
		c.subs[topic] = list
	}
	c.subMu.Unlock()

	if !empty || !c.IsConnected() {
		return
	}
	if err := c.writeFrame(&frame{Op: opUnsubscribe, Topic: wireTopic(topic)}); err != nil {
		c.logger.Warn("failed to unsubscribe", "topic", topic, "error", err)
	}
}

// SendEvent publishes evt to its topic.
func (c *wsClient) SendEvent(evt *Event) error {
	if evt.MessageID == "" {
		evt.MessageID = uuid.NewString()
	}
	return c.writeFrame(&frame{
		Op:        opEvent,
		Topic:     evt.Topic,
		MessageID: evt.MessageID,
		Payload:   evt.Payload,
	})
}

// SendRequest sends req and registers cb for the response. The response
// arrives on the client's private reply topic unless req names another.
func (c *wsClient) SendRequest(req *Request, cb ResponseHandler) error {
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	if req.ReplyTo == "" {
		req.ReplyTo = c.replyTopic
	}

	if cb != nil {
		c.pendingMu.Lock()
		c.pending[req.MessageID] = cb
		n := len(c.pending)
		c.pendingMu.Unlock()
		c.sink.SetGauge(MetricPendingRequests, float32(n))
	}

	err := c.writeFrame(&frame{
		Op:        opRequest,
		Topic:     req.Topic,
		MessageID: req.MessageID,
		ReplyTo:   req.ReplyTo,
		Payload:   req.Payload,
	})
	if err != nil && cb != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}
	return err
}

// SendResponse publishes resp to the reply topic named in it.
func (c *wsClient) SendResponse(resp *Response) error {
	if resp.MessageID == "" {
		resp.MessageID = uuid.NewString()
	}
	return c.writeFrame(&frame{
		Op:               opResponse,
		Topic:            resp.Topic,
		MessageID:        resp.MessageID,
		RequestMessageID: resp.RequestMessageID,
		Payload:          resp.Payload,
	})
}

// RegisterService exposes the service described by reg. The registration
// is announced immediately when connected and replayed after every
// connect; registering while disconnected defers the announcement.
func (c *wsClient) RegisterService(reg ServiceRegistration) (*ServiceHandle, error) {
	if reg.ServiceType == "" {
		return nil, fmt.Errorf("%w: missing service type", ErrInvalidRegistration)
	}
	if len(reg.TopicHandlers) == 0 {
		return nil, fmt.Errorf("%w: service %s has no topic handlers", ErrInvalidRegistration, reg.ServiceType)
	}

	c.mu.RLock()
	destroyed := c.destroyed
	c.mu.RUnlock()
	if destroyed {
		return nil, ErrDestroyed
	}

	entry := &serviceEntry{
		reg: reg,
		handle: &ServiceHandle{
			InstanceID:  uuid.NewString(),
			ServiceType: reg.ServiceType,
		},
	}

	c.svcMu.Lock()
	c.services[entry.handle.InstanceID] = entry
	c.svcMu.Unlock()

	if c.IsConnected() {
		if err := c.writeFrame(registerFrame(entry)); err != nil {
			c.logger.Warn("failed to announce service",
				"service_type", reg.ServiceType,
				"error", err,
			)
		}
	}

	c.logger.Debug("service registered",
		"service_type", reg.ServiceType,
		"instance_id", entry.handle.InstanceID,
	)

	return entry.handle, nil
}

// UnregisterService removes a registration made by RegisterService.
func (c *wsClient) UnregisterService(handle *ServiceHandle) error {
	if handle == nil {
		return nil
	}

	c.svcMu.Lock()
	entry, ok := c.services[handle.InstanceID]
	if ok {
		delete(c.services, handle.InstanceID)
	}
	c.svcMu.Unlock()

	if !ok {
		return nil
	}

	var err error
	if c.IsConnected() {
		err = c.writeFrame(&frame{
			Op:          opServiceUnregister,
			ServiceType: entry.reg.ServiceType,
			InstanceID:  handle.InstanceID,
		})
	}

	c.logger.Debug("service unregistered",
		"service_type", entry.reg.ServiceType,
		"instance_id", handle.InstanceID,
	)
	return err
}

// dial performs the WebSocket handshake and installs the new connection,
// unless gen no longer matches the client's connection generation.
func (c *wsClient) dial(ctx context.Context, gen int) error {
	header := http.Header{}
	header.Set("X-Fabric-Client-ID", c.cfg.ClientID)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		conn.Close()
		return ErrDestroyed
	}
	if c.userClosed || c.connGen != gen {
		c.mu.Unlock()
		conn.Close()
		return errDialSuperseded
	}
	connDone := make(chan struct{})
	c.conn = conn
	c.connDone = connDone
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	// Broker sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Broker responds to our ping
	conn.SetPongHandler(func(data string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	c.wg.Add(1)
	go c.readLoop(conn, connDone, gen)

	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop(conn, connDone, gen)
	}

	c.sink.IncrCounter(MetricConnects, 1)
	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// replayState pushes the current subscription and service state to a
// freshly established connection.
func (c *wsClient) replayState() {
	c.subMu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.subMu.Unlock()
	sort.Strings(topics)

	for _, topic := range topics {
		if err := c.writeFrame(&frame{Op: opSubscribe, Topic: wireTopic(topic)}); err != nil {
			c.logger.Warn("failed to replay subscription", "topic", topic, "error", err)
		}
	}

	c.svcMu.Lock()
	entries := make([]*serviceEntry, 0, len(c.services))
	for _, entry := range c.services {
		entries = append(entries, entry)
	}
	c.svcMu.Unlock()

	for _, entry := range entries {
		if err := c.writeFrame(registerFrame(entry)); err != nil {
			c.logger.Warn("failed to replay service registration",
				"service_type", entry.reg.ServiceType,
				"error", err,
			)
		}
	}
}

// registerFrame builds the announcement frame for a service entry.
func registerFrame(entry *serviceEntry) *frame {
	topics := make([]string, 0, len(entry.reg.TopicHandlers))
	for topic := range entry.reg.TopicHandlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	return &frame{
		Op:          opServiceRegister,
		ServiceType: entry.reg.ServiceType,
		InstanceID:  entry.handle.InstanceID,
		Topics:      topics,
		Metadata:    entry.reg.Metadata,
	}
}

// wireTopic maps the local all-topics subscription to the broker wildcard.
func wireTopic(topic string) string {
	if topic == "" {
		return topicWildcard
	}
	return topic
}

// writeFrame marshals f and writes it to the connection.
func (c *wsClient) writeFrame(f *frame) error {
	c.mu.RLock()
	if c.destroyed {
		c.mu.RUnlock()
		return ErrDestroyed
	}
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	c.sink.IncrCounter(MetricFramesOut, 1)
	return nil
}

// readLoop reads frames until the connection drops or is closed.
func (c *wsClient) readLoop(conn *websocket.Conn, connDone chan struct{}, gen int) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Ignore errors after Disconnect or Destroy
			select {
			case <-connDone:
				return
			case <-c.done:
				return
			default:
			}
			c.handleDrop(gen, err)
			return
		}

		c.sink.IncrCounter(MetricFramesIn, 1)
		c.dispatch(data)
	}
}

// heartbeatLoop sends keepalive pings and tears down connections that
// stop answering.
func (c *wsClient) heartbeatLoop(conn *websocket.Conn, connDone chan struct{}, gen int) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-connDone:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if time.Since(lastPong) > c.cfg.PingTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PingTimeout,
				)
				c.handleDrop(gen, ErrStaleConnection)
				return
			}
		}
	}
}

// handleDrop marks the connection down after an unexpected loss and
// starts the reconnect loop.
func (c *wsClient) handleDrop(gen int, err error) {
	c.mu.Lock()
	if c.destroyed || c.userClosed || c.connGen != gen || !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	c.conn = nil
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.sink.IncrCounter(MetricDrops, 1)
	c.logger.Warn("connection lost", "error", err)

	c.wg.Add(1)
	go c.reconnectLoop(gen)
}

// reconnectLoop re-establishes a dropped connection with exponential
// backoff, replaying subscriptions and service registrations on success.
func (c *wsClient) reconnectLoop(gen int) {
	defer c.wg.Done()

	wait := c.cfg.ReconnectBaseWait
	for attempt := 1; ; attempt++ {
		c.emit(StateReconnecting)

		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		c.mu.RLock()
		stale := c.destroyed || c.userClosed || c.connGen != gen
		c.mu.RUnlock()
		if stale {
			return
		}

		c.logger.Info("attempting reconnection", "attempt", attempt)
		c.sink.IncrCounter(MetricReconnectAttempts, 1)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err := c.dial(ctx, gen)
		cancel()

		if err == nil {
			c.replayState()
			c.emit(StateConnected)
			c.logger.Info("reconnected", "attempts", attempt)
			return
		}
		if errors.Is(err, errDialSuperseded) || errors.Is(err, ErrDestroyed) {
			return
		}

		c.logger.Warn("reconnection failed", "attempt", attempt, "error", err)

		if c.cfg.MaxReconnects > 0 && attempt >= c.cfg.MaxReconnects {
			c.logger.Error("reconnect attempts exhausted", "attempts", attempt)
			c.emit(StateClosed)
			return
		}

		wait *= 2
		if wait > c.cfg.ReconnectMaxWait {
			wait = c.cfg.ReconnectMaxWait
		}
	}
}

// dispatch routes one inbound frame to subscribers, a pending request or
// a service handler.
func (c *wsClient) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sink.IncrCounter(MetricFrameErrors, 1)
		c.logger.Warn("unparseable frame", "error", err)
		return
	}

	switch f.Op {
	case opEvent:
		c.dispatchEvent(&f)
	case opResponse:
		c.dispatchResponse(&f)
	case opRequest:
		c.dispatchRequest(&f)
	default:
		c.sink.IncrCounter(MetricFrameErrors, 1)
		c.logger.Warn("unknown frame op", "op", f.Op)
	}
}

// dispatchEvent delivers an event to the topic's callbacks plus any
// all-topics callbacks.
func (c *wsClient) dispatchEvent(f *frame) {
	evt := &Event{
		Topic:     f.Topic,
		MessageID: f.MessageID,
		Payload:   f.Payload,
	}

	c.subMu.Lock()
	cbs := make([]EventCallback, 0, len(c.subs[f.Topic])+len(c.subs[""]))
	for _, sub := range c.subs[f.Topic] {
		cbs = append(cbs, sub.cb)
	}
	if f.Topic != "" {
		for _, sub := range c.subs[""] {
			cbs = append(cbs, sub.cb)
		}
	}
	c.subMu.Unlock()

	for _, cb := range cbs {
		cb(evt)
	}
}

// dispatchResponse completes the pending request the response answers.
func (c *wsClient) dispatchResponse(f *frame) {
	c.pendingMu.Lock()
	cb, ok := c.pending[f.RequestMessageID]
	if ok {
		delete(c.pending, f.RequestMessageID)
	}
	n := len(c.pending)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("response with no pending request",
			"request_message_id", f.RequestMessageID,
		)
		return
	}
	c.sink.SetGauge(MetricPendingRequests, float32(n))

	cb(&Response{
		Topic:            f.Topic,
		MessageID:        f.MessageID,
		RequestMessageID: f.RequestMessageID,
		Payload:          f.Payload,
	})
}

// dispatchRequest routes an incoming request to the service handler
// registered for its topic.
func (c *wsClient) dispatchRequest(f *frame) {
	var handler RequestHandler
	c.svcMu.Lock()
	for _, entry := range c.services {
		if h, ok := entry.reg.TopicHandlers[f.Topic]; ok {
			handler = h
			break
		}
	}
	c.svcMu.Unlock()

	if handler == nil {
		c.sink.IncrCounter(MetricFrameErrors, 1)
		c.logger.Warn("request for unhandled topic", "topic", f.Topic)
		return
	}

	handler(&Request{
		Topic:     f.Topic,
		MessageID: f.MessageID,
		ReplyTo:   f.ReplyTo,
		Payload:   f.Payload,
	})
}

// notifyLoop forwards state events to the public channel and owns its
// closure so Destroy never races a send.
func (c *wsClient) notifyLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.stateCh:
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}
}

// emit queues a state event for the notification channel.
func (c *wsClient) emit(ev StateEvent) {
	select {
	case c.stateCh <- ev:
	case <-c.done:
	}
}
