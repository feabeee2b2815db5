package bridge

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/skaldan/fabriclink/internal/config"
	"github.com/skaldan/fabriclink/internal/coordinator"
	"github.com/skaldan/fabriclink/internal/fabric"
)

// fakeCoordinator records facade calls and lets tests drive status sinks
// and service handlers directly.
type fakeCoordinator struct {
	mu           sync.Mutex
	sinks        map[string]coordinator.StatusSink
	unregistered []string
	callbacks    map[string]int
	services     map[string]map[string]fabric.RequestHandler
	removedSvc   []*fabric.ServiceHandle
	responses    []*fabric.Response
	lastCB       fabric.ResponseHandler

	events   chan *fabric.Event
	requests chan *fabric.Request

	// A non-nil entry delays that consumer's release signal.
	releaseHold map[string]chan struct{}
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		sinks:       make(map[string]coordinator.StatusSink),
		callbacks:   make(map[string]int),
		services:    make(map[string]map[string]fabric.RequestHandler),
		events:      make(chan *fabric.Event, 64),
		requests:    make(chan *fabric.Request, 64),
		releaseHold: make(map[string]chan struct{}),
	}
}

func (f *fakeCoordinator) RegisterConsumer(id string, sink coordinator.StatusSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[id] = sink
}

func (f *fakeCoordinator) UnregisterConsumer(id string) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, id)
	f.unregistered = append(f.unregistered, id)
	if hold, ok := f.releaseHold[id]; ok {
		return hold
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakeCoordinator) Teardown() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakeCoordinator) AddEventCallback(topic string, callback fabric.EventCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[topic]++
}

func (f *fakeCoordinator) RemoveEventCallback(topic string, callback fabric.EventCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[topic]--
}

func (f *fakeCoordinator) SendEvent(evt *fabric.Event) error {
	f.events <- evt
	return nil
}

func (f *fakeCoordinator) SendAsyncRequest(req *fabric.Request, responseCallback fabric.ResponseHandler) error {
	f.mu.Lock()
	f.lastCB = responseCallback
	f.mu.Unlock()
	f.requests <- req
	return nil
}

func (f *fakeCoordinator) SendResponse(resp *fabric.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeCoordinator) RegisterService(serviceType string, topicHandlers map[string]fabric.RequestHandler) (*fabric.ServiceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[serviceType] = topicHandlers
	return &fabric.ServiceHandle{InstanceID: "inst-" + serviceType, ServiceType: serviceType}, nil
}

func (f *fakeCoordinator) UnregisterService(handle *fabric.ServiceHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedSvc = append(f.removedSvc, handle)
	return nil
}

func (f *fakeCoordinator) State() coordinator.State { return coordinator.StateConnected }

func (f *fakeCoordinator) Stats() coordinator.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return coordinator.Stats{State: "connected", Consumers: len(f.sinks)}
}

func (f *fakeCoordinator) ConsumerIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.sinks))
	for id := range f.sinks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeCoordinator) handler(serviceType, topic string) fabric.RequestHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[serviceType][topic]
}

func (f *fakeCoordinator) sink(id string) coordinator.StatusSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[id]
}

func (f *fakeCoordinator) responseCB() fabric.ResponseHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCB
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBridgeConfig() config.BridgeConfig {
	return config.BridgeConfig{
		Taps: []config.TapConfig{{Name: "audit", Topic: "/market/trades"}},
		Services: []config.ServiceConfig{{
			Name:        "echo",
			ServiceType: "echo",
			Topics:      map[string]string{"/svc/echo": "pong"},
		}},
		Heartbeats: []config.HeartbeatConfig{{
			Name:     "pulse",
			Topic:    "/bridge/heartbeat",
			Payload:  "alive",
			Interval: 10 * time.Millisecond,
		}},
		Probes: []config.ProbeConfig{{
			Name:     "rtt",
			Topic:    "/svc/echo",
			Payload:  "ping",
			Interval: 10 * time.Millisecond,
		}},
	}
}

func waitEvent(t *testing.T, ch chan *fabric.Event) *fabric.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func waitRequest(t *testing.T, ch chan *fabric.Request) *fabric.Request {
	t.Helper()
	select {
	case req := <-ch:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return nil
	}
}

func TestBridgeLifecycle(t *testing.T) {
	fc := newFakeCoordinator()
	b := New(testBridgeConfig(), fc, testLogger())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	wantIDs := []string{"audit", "echo", "pulse", "rtt"}
	gotIDs := fc.ConsumerIDs()
	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("ConsumerIDs = %v, want %v", gotIDs, wantIDs)
	}
	for i, id := range wantIDs {
		if gotIDs[i] != id {
			t.Errorf("ConsumerIDs[%d] = %q, want %q", i, gotIDs[i], id)
		}
	}

	fc.mu.Lock()
	tapCount := fc.callbacks["/market/trades"]
	fc.mu.Unlock()
	if tapCount != 1 {
		t.Errorf("tap callbacks on /market/trades = %d, want 1", tapCount)
	}
	if fc.handler("echo", "/svc/echo") == nil {
		t.Error("echo service handler not registered")
	}

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	fc.mu.Lock()
	unregistered := append([]string(nil), fc.unregistered...)
	tapCount = fc.callbacks["/market/trades"]
	removed := len(fc.removedSvc)
	fc.mu.Unlock()

	if len(unregistered) != 4 {
		t.Errorf("unregistered consumers = %v, want all 4 units", unregistered)
	}
	if tapCount != 0 {
		t.Errorf("tap callbacks after stop = %d, want 0", tapCount)
	}
	if removed != 1 {
		t.Errorf("unregistered services = %d, want 1", removed)
	}
}

func TestServiceUnitAnswersRequests(t *testing.T) {
	fc := newFakeCoordinator()
	cfg := config.BridgeConfig{Services: testBridgeConfig().Services}
	b := New(cfg, fc, testLogger())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop(context.Background())

	handler := fc.handler("echo", "/svc/echo")
	if handler == nil {
		t.Fatal("echo service handler not registered")
	}

	handler(&fabric.Request{
		Topic:     "/svc/echo",
		MessageID: "req-1",
		ReplyTo:   "/client/tester/reply",
	})

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.responses) != 1 {
		t.Fatalf("responses sent = %d, want 1", len(fc.responses))
	}
	resp := fc.responses[0]
	if resp.Topic != "/client/tester/reply" {
		t.Errorf("response Topic = %q, want %q", resp.Topic, "/client/tester/reply")
	}
	if resp.RequestMessageID != "req-1" {
		t.Errorf("response RequestMessageID = %q, want %q", resp.RequestMessageID, "req-1")
	}
	if string(resp.Payload) != "pong" {
		t.Errorf("response Payload = %q, want %q", resp.Payload, "pong")
	}
}

func TestHeartbeatPublishes(t *testing.T) {
	fc := newFakeCoordinator()
	cfg := config.BridgeConfig{Heartbeats: testBridgeConfig().Heartbeats}
	b := New(cfg, fc, testLogger())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	evt := waitEvent(t, fc.events)
	if evt.Topic != "/bridge/heartbeat" {
		t.Errorf("heartbeat Topic = %q, want %q", evt.Topic, "/bridge/heartbeat")
	}
	if string(evt.Payload) != "alive" {
		t.Errorf("heartbeat Payload = %q, want %q", evt.Payload, "alive")
	}

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stop waits for the beat loop to exit, so the channel can only
	// hold beats sent before it returned.
	for {
		select {
		case <-fc.events:
			continue
		default:
		}
		break
	}
	select {
	case evt := <-fc.events:
		t.Errorf("heartbeat after stop: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProbeSendsRequests(t *testing.T) {
	fc := newFakeCoordinator()
	cfg := config.BridgeConfig{Probes: testBridgeConfig().Probes}
	b := New(cfg, fc, testLogger())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop(context.Background())

	req := waitRequest(t, fc.requests)
	if req.Topic != "/svc/echo" {
		t.Errorf("probe Topic = %q, want %q", req.Topic, "/svc/echo")
	}
	if string(req.Payload) != "ping" {
		t.Errorf("probe Payload = %q, want %q", req.Payload, "ping")
	}

	cb := fc.responseCB()
	if cb == nil {
		t.Fatal("probe sent no response callback")
	}
	cb(&fabric.Response{Payload: []byte("pong")})
}

func TestUnitStatusTracking(t *testing.T) {
	fc := newFakeCoordinator()
	b := New(testBridgeConfig(), fc, testLogger())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop(context.Background())

	for _, id := range []string{"audit", "echo", "pulse", "rtt"} {
		sink := fc.sink(id)
		if sink == nil {
			t.Fatalf("no sink registered for %q", id)
		}
		sink(coordinator.StatusConnected)
	}
	fc.sink("audit")(coordinator.StatusDisconnected)

	statuses := b.UnitStatuses()
	if len(statuses) != 4 {
		t.Fatalf("UnitStatuses has %d entries, want 4", len(statuses))
	}
	if statuses["audit"] != coordinator.StatusDisconnected {
		t.Errorf("audit status = %+v, want disconnected", statuses["audit"])
	}
	for _, id := range []string{"echo", "pulse", "rtt"} {
		if statuses[id] != coordinator.StatusConnected {
			t.Errorf("%s status = %+v, want connected", id, statuses[id])
		}
	}
}

func TestStopHonorsContext(t *testing.T) {
	fc := newFakeCoordinator()
	fc.releaseHold["audit"] = make(chan struct{})
	cfg := config.BridgeConfig{Taps: testBridgeConfig().Taps}
	b := New(cfg, fc, testLogger())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := b.Stop(ctx); err != context.DeadlineExceeded {
		t.Errorf("Stop = %v, want context.DeadlineExceeded", err)
	}
}
