// Package metrics installs the process-wide metric sink.
//
// Key metrics:
//   - fabric client frame, drop and reconnect counters
//   - coordinator connect/disconnect/broadcast counters
//   - registered-consumer gauge
//   - facade send counters
//
// Components emit through injected go-metrics sinks that default to the
// global one, so installing the in-memory sink here is all the daemon
// needs to make every counter land in one snapshottable place.
package metrics
