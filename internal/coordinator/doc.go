// Package coordinator shares one fabric connection among many consumers.
//
// The coordinator:
//   - Owns a single fabric client for its whole lifetime
//   - Connects when the first consumer registers and disconnects when
//     the last one leaves
//   - Fans connection-state changes out to every registered consumer as
//     {color, shape, text} status tuples
//   - Exposes the message passthrough surface (events, requests,
//     responses, services) that delegates to the underlying client
//   - Tears down exactly once, destroying the client
package coordinator
