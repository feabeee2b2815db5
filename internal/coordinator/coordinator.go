package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-metrics"

	"github.com/skaldan/fabriclink/internal/fabric"
)

// Coordinator shares a single fabric client among many consumers. It
// connects when the first consumer registers, disconnects when the last
// one leaves, and broadcasts every state change to all registered sinks.
type Coordinator interface {
	// RegisterConsumer adds or overwrites the consumer entry for id.
	// Registering the first consumer triggers a connect. Never fails;
	// ignored once Teardown has begun.
	RegisterConsumer(id string, sink StatusSink)

	// UnregisterConsumer removes the consumer entry for id. Removing the
	// last consumer releases the connection; the returned signal resolves
	// once the release finishes, or immediately when there is nothing to
	// release.
	UnregisterConsumer(id string) <-chan struct{}

	// Teardown shuts the coordinator down and destroys the underlying
	// client. Idempotent; every call returns the same signal, resolved
	// when the client is fully destroyed.
	Teardown() <-chan struct{}

	// AddEventCallback subscribes callback to Event messages on topic.
	// The empty topic receives events from every topic.
	AddEventCallback(topic string, callback fabric.EventCallback)

	// RemoveEventCallback unsubscribes the exact (topic, callback) pair
	// previously added. A silent no-op once Teardown has begun.
	RemoveEventCallback(topic string, callback fabric.EventCallback)

	// SendEvent publishes an event message.
	SendEvent(evt *fabric.Event) error

	// SendAsyncRequest dispatches a request; responseCallback, when
	// non-nil, is invoked once when the matching response arrives.
	SendAsyncRequest(req *fabric.Request, responseCallback fabric.ResponseHandler) error

	// SendResponse delivers a response correlated to a prior request.
	SendResponse(resp *fabric.Response) error

	// RegisterService announces a service binding each topic to its
	// handler and returns the handle for unregistration.
	RegisterService(serviceType string, topicHandlers map[string]fabric.RequestHandler) (*fabric.ServiceHandle, error)

	// UnregisterService removes a previously registered service. A silent
	// no-op once Teardown has begun.
	UnregisterService(handle *fabric.ServiceHandle) error

	// State returns the coordinator's current connection state.
	State() State

	// Stats returns a snapshot of the coordinator for diagnostics.
	Stats() Stats

	// ConsumerIDs returns the registered consumer ids in sorted order.
	ConsumerIDs() []string
}

// coordinator implements the Coordinator interface.
type coordinator struct {
	cfg    Config
	client fabric.Client
	logger *slog.Logger
	sink   metrics.MetricSink
	labels []metrics.Label

	// State and registry share one mutex so size transitions and
	// connection flags are observed atomically.
	mu            sync.Mutex
	reg           *registry
	connected     bool
	connecting    bool
	disconnecting bool
	closing       bool
	closeDone     chan struct{}

	wgState sync.WaitGroup
}

// NewCoordinator creates a coordinator owning client. The client handle
// must not be used directly by anyone else afterwards.
func NewCoordinator(cfg Config, client fabric.Client, logger *slog.Logger) Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	sink := cfg.Sink
	if sink == nil {
		sink = metrics.Default()
	}

	c := &coordinator{
		cfg:       cfg,
		client:    client,
		logger:    logger.With("coordinator", cfg.Name),
		sink:      sink,
		labels:    coordinatorLabels(cfg.Name),
		reg:       newRegistry(),
		closeDone: make(chan struct{}),
	}

	c.wgState.Add(1)
	go c.stateLoop()

	return c
}

// RegisterConsumer adds or overwrites the entry for id. The connect
// trigger fires only on the empty-to-one transition, atomically with the
// insert, so racing registrations cannot double-connect.
func (c *coordinator) RegisterConsumer(id string, sink StatusSink) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		c.logger.Debug("consumer registration ignored during teardown", "consumer_id", id)
		return
	}
	first := c.reg.insert(id, sink)
	size := c.reg.size()
	trigger := first && !c.connected && !c.connecting
	var sinks []StatusSink
	if trigger {
		c.connecting = true
		sinks = c.reg.sinks()
	}
	c.mu.Unlock()

	c.logger.Debug("consumer registered", "consumer_id", id, "consumers", size)
	c.sink.SetGaugeWithLabels(MetricConsumers, float32(size), c.labels)

	if !trigger {
		return
	}

	c.logger.Info("first consumer registered, connecting")
	c.broadcast(StatusConnecting, sinks)

	go c.runConnect()
}

// UnregisterConsumer removes the entry for id. Unknown ids resolve
// immediately; so does any call made after Teardown.
func (c *coordinator) UnregisterConsumer(id string) <-chan struct{} {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return closedSignal()
	}
	removed, last := c.reg.remove(id)
	size := c.reg.size()
	if !removed || !last {
		c.mu.Unlock()
		if removed {
			c.logger.Debug("consumer unregistered", "consumer_id", id, "consumers", size)
			c.sink.SetGaugeWithLabels(MetricConsumers, float32(size), c.labels)
		}
		return closedSignal()
	}

	// Last consumer gone: release the connection. Connection flags are
	// cleared here, under the same lock as the removal, so a racing
	// re-registration observes the release and triggers a fresh connect.
	c.connected = false
	c.connecting = false
	c.disconnecting = true
	c.mu.Unlock()

	c.logger.Info("last consumer unregistered, disconnecting", "consumer_id", id)
	c.sink.SetGaugeWithLabels(MetricConsumers, 0, c.labels)

	done := make(chan struct{})
	finish := func() {
		c.mu.Lock()
		c.disconnecting = false
		c.mu.Unlock()
		close(done)
	}

	if c.client.IsConnected() {
		c.client.Disconnect(finish)
	} else {
		c.client.Disconnect(nil)
		finish()
	}

	return done
}

// Teardown sets the closing latch, tells the remaining consumers the
// connection is gone, and destroys the underlying client. The client
// handle must not be used after the returned signal resolves.
func (c *coordinator) Teardown() <-chan struct{} {
	c.mu.Lock()
	if c.closing {
		done := c.closeDone
		c.mu.Unlock()
		return done
	}
	c.closing = true
	wasConnected := c.connected
	c.connected = false
	c.connecting = false
	sinks := c.reg.sinks()
	done := c.closeDone
	c.mu.Unlock()

	c.logger.Info("tearing down", "was_connected", wasConnected)
	c.broadcast(StatusDisconnected, sinks)

	finish := func() {
		c.client.Destroy()
		c.wgState.Wait()
		close(done)
		c.logger.Info("teardown complete")
	}

	if wasConnected {
		c.client.Disconnect(finish)
	} else {
		finish()
	}

	return done
}

// State returns the coordinator's current connection state.
func (c *coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *coordinator) stateLocked() State {
	switch {
	case c.closing:
		return StateClosing
	case c.disconnecting:
		return StateDisconnecting
	case c.connected:
		return StateConnected
	case c.connecting:
		return StateConnecting
	default:
		return StateIdle
	}
}

// Stats returns a snapshot for diagnostics.
func (c *coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:     c.stateLocked().String(),
		Consumers: c.reg.size(),
	}
}

// ConsumerIDs returns the registered consumer ids in sorted order.
func (c *coordinator) ConsumerIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.ids()
}

// runConnect performs one connect attempt. Success and failure both
// surface on the client's notification channel; the returned error only
// adds detail for the log.
func (c *coordinator) runConnect() {
	if err := c.client.Connect(context.Background()); err != nil {
		c.logger.Debug("connect attempt returned error", "error", err)
	}
}

// stateLoop consumes the client's state notifications one at a time, so
// status broadcasts reach consumers in exactly the order the underlying
// client reported the transitions. It exits when Destroy closes the
// channel.
func (c *coordinator) stateLoop() {
	defer c.wgState.Done()

	for ev := range c.client.Events() {
		switch ev {
		case fabric.StateConnected:
			c.handleConnected()
		case fabric.StateReconnecting:
			c.handleReconnecting()
		case fabric.StateClosed:
			c.handleClosed()
		}
	}
}

func (c *coordinator) handleConnected() {
	c.mu.Lock()
	c.connecting = false
	c.connected = true
	if c.closing {
		c.mu.Unlock()
		return
	}
	sinks := c.reg.sinks()
	c.mu.Unlock()

	c.logger.Info("fabric connection established")
	c.sink.IncrCounterWithLabels(MetricConnects, 1, c.labels)
	c.broadcast(StatusConnected, sinks)
}

// handleReconnecting tells consumers the connection is being restored.
// The coordinator itself stays Connected: the reconnect window is
// cosmetic and sends are not refused during it.
func (c *coordinator) handleReconnecting() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	sinks := c.reg.sinks()
	c.mu.Unlock()

	c.logger.Warn("fabric connection reconnecting")
	c.broadcast(StatusConnecting, sinks)
}

func (c *coordinator) handleClosed() {
	c.mu.Lock()
	wasConnected := c.connected
	wasConnecting := c.connecting
	c.connected = false
	c.connecting = false
	if c.closing {
		c.mu.Unlock()
		return
	}
	sinks := c.reg.sinks()
	c.mu.Unlock()

	if wasConnecting && !wasConnected {
		c.logger.Error("connect attempt failed before becoming established")
	} else {
		c.logger.Info("fabric connection closed")
	}

	c.sink.IncrCounterWithLabels(MetricDisconnects, 1, c.labels)
	c.broadcast(StatusDisconnected, sinks)
}

// broadcast invokes every sink outside the coordinator mutex.
func (c *coordinator) broadcast(st Status, sinks []StatusSink) {
	if len(sinks) == 0 {
		return
	}
	for _, sink := range sinks {
		sink(st)
	}
	c.sink.IncrCounterWithLabels(MetricStatusBroadcasts, float32(len(sinks)), c.labels)
}

// closedSignal returns an already-resolved completion signal.
func closedSignal() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}
