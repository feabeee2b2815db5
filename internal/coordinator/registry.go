package coordinator

import "sort"

// registry tracks the consumers currently sharing the connection. It has
// no lock of its own: every method runs under the coordinator mutex so
// size transitions are observed atomically with the mutation.
type registry struct {
	consumers map[string]StatusSink
}

func newRegistry() *registry {
	return &registry{consumers: make(map[string]StatusSink)}
}

// insert adds or overwrites the entry for id and reports whether the
// registry went from empty to one consumer.
func (r *registry) insert(id string, sink StatusSink) (first bool) {
	_, existed := r.consumers[id]
	r.consumers[id] = sink
	return !existed && len(r.consumers) == 1
}

// remove deletes the entry for id. removed is false for unknown ids;
// last reports whether the registry went from one consumer to empty.
func (r *registry) remove(id string) (removed, last bool) {
	if _, ok := r.consumers[id]; !ok {
		return false, false
	}
	delete(r.consumers, id)
	return true, len(r.consumers) == 0
}

func (r *registry) size() int {
	return len(r.consumers)
}

// sinks returns a snapshot of the registered sinks so broadcasts can run
// outside the coordinator mutex.
func (r *registry) sinks() []StatusSink {
	out := make([]StatusSink, 0, len(r.consumers))
	for _, sink := range r.consumers {
		out = append(out, sink)
	}
	return out
}

// ids returns the registered consumer ids in sorted order.
func (r *registry) ids() []string {
	out := make([]string, 0, len(r.consumers))
	for id := range r.consumers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
