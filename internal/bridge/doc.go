// Package bridge hosts the consumer units configured for this instance.
//
// Units:
//   - tap: logs events observed on a topic
//   - service: answers requests on a set of topics with fixed payloads
//   - heartbeat: publishes an event periodically
//   - probe: measures request/response round-trip times
//
// Every unit is one coordinator consumer. The bridge registers them all
// on start, which brings the shared fabric connection up, and
// unregisters them one by one on stop, releasing the connection when
// the last one leaves.
package bridge
