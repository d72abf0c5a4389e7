// Package queue implements the bounded pending queue that sits in front of
// every link's send path.
//
// The bridge owns one Queue per destination link and hands it to the link
// constructor. Producers (the router, the heartbeat, the health publisher)
// push without ever blocking; the link's send loop pops in FIFO order while
// the link is connected.
//
// # Overflow Policy
//
// When a push would exceed capacity, the oldest queued message is dropped
// and reported through the configured DropFunc with DropOverflow. Recent
// data is favoured over completeness, and queue order is never changed.
//
// # Expiry
//
// With a non-zero TTL, Pop discards messages older than the TTL and reports
// them with DropExpired.
package queue
