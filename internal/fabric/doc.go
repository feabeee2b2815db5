// Package fabric implements the messaging-fabric client.
//
// The fabric client:
//   - Speaks a JSON frame protocol over a single WebSocket connection
//   - Dispatches Event messages to topic subscribers
//   - Correlates Response messages to pending requests by message ID
//   - Routes incoming Request messages to registered service handlers
//   - Reconnects with exponential backoff, replaying subscriptions and
//     service registrations
//   - Reports connection-state transitions on a notification channel
package fabric
