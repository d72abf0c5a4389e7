// Package message defines the unit of traffic relayed between the MQTT
// broker and WebSocket peers.
//
// A Message is produced by a link when it receives a frame or publish,
// consumed exactly once by the bridge router, and then copied into the
// pending queue of every destination link. Messages are immutable once
// built: accessors hand out copies of the payload so a destination link
// can never observe another link's mutation.
package message
