// Package bridge routes messages between the BrokerLink and the socket
// links.
//
// # Architecture
//
//	┌────────────┐  inbox   ┌──────────┐  PendingQueue  ┌────────────┐
//	│ BrokerLink │─────────►│  Bridge  │───────────────►│ SocketLink │
//	│            │◄─────────│ (router) │◄───────────────│            │
//	└────────────┘          └──────────┘     inbox      └────────────┘
//
// Links push every received message into one inbox. A single router
// goroutine drains it, matches each message against two independent
// routing tables and pushes copies onto destination queues. Routing never
// performs I/O and never waits for a destination; a full queue drops its
// oldest entry and reports an overflow event.
//
// # Routing Tables
//
//   - broker_to_socket: MQTT topic filters (+ and #) to socket targets
//   - socket_to_broker: exact channel names or "*" to broker topics,
//     optionally restricted to one source link and transformed
//
// A message with no matching route is dropped and reported once as
// unroutable. A bounded ledger guarantees each received message is
// enqueued at most once per destination.
//
// # Events
//
// Links, queues and the router emit into a Dispatcher, which fans events
// out to metrics, health, the journal and the log on its own goroutine.
package bridge
