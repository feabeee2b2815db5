package coordinator

import "github.com/skaldan/fabriclink/internal/fabric"

// The passthrough facade delegates message operations to the underlying
// client. Errors come back unchanged, fabric.ErrNotConnected included;
// requiring a registered consumer first is the caller's job. Once the
// closing latch is set, send and register operations fail with
// ErrClosing while remove and unregister operations fall silent, so
// nothing touches a client handle mid-destruction.

func (c *coordinator) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// AddEventCallback subscribes callback to Event messages on topic. The
// empty topic receives events from every topic.
func (c *coordinator) AddEventCallback(topic string, callback fabric.EventCallback) {
	if c.isClosing() {
		return
	}
	c.client.Subscribe(topic, callback)
}

// RemoveEventCallback unsubscribes the exact (topic, callback) pair.
func (c *coordinator) RemoveEventCallback(topic string, callback fabric.EventCallback) {
	if c.isClosing() {
		return
	}
	c.client.Unsubscribe(topic, callback)
}

// SendEvent publishes an event message.
func (c *coordinator) SendEvent(evt *fabric.Event) error {
	if c.isClosing() {
		return ErrClosing
	}
	if err := c.client.SendEvent(evt); err != nil {
		return err
	}
	c.sink.IncrCounterWithLabels(MetricEventsOut, 1, c.labels)
	return nil
}

// SendAsyncRequest dispatches a request message. responseCallback, when
// non-nil, is invoked exactly once when the matching response arrives,
// or never; no timeout is imposed at this layer.
func (c *coordinator) SendAsyncRequest(req *fabric.Request, responseCallback fabric.ResponseHandler) error {
	if c.isClosing() {
		return ErrClosing
	}
	if err := c.client.SendRequest(req, responseCallback); err != nil {
		return err
	}
	c.sink.IncrCounterWithLabels(MetricRequestsOut, 1, c.labels)
	return nil
}

// SendResponse delivers a response correlated to a prior request.
func (c *coordinator) SendResponse(resp *fabric.Response) error {
	if c.isClosing() {
		return ErrClosing
	}
	if err := c.client.SendResponse(resp); err != nil {
		return err
	}
	c.sink.IncrCounterWithLabels(MetricResponsesOut, 1, c.labels)
	return nil
}

// RegisterService builds the registration descriptor binding each topic
// to its handler and submits it to the underlying client.
func (c *coordinator) RegisterService(serviceType string, topicHandlers map[string]fabric.RequestHandler) (*fabric.ServiceHandle, error) {
	if c.isClosing() {
		return nil, ErrClosing
	}
	return c.client.RegisterService(fabric.ServiceRegistration{
		ServiceType:   serviceType,
		TopicHandlers: topicHandlers,
	})
}

// UnregisterService removes a previously registered service.
func (c *coordinator) UnregisterService(handle *fabric.ServiceHandle) error {
	if c.isClosing() {
		return nil
	}
	return c.client.UnregisterService(handle)
}
