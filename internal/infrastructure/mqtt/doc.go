// Package mqtt provides the BrokerLink: the relay's MQTT side.
//
// This package manages:
//   - One broker session at a time, driven by the shared link runner
//   - An ordered subscription registry replayed on every (re)connect
//   - Publishing through a bounded PendingQueue flushed after replay
//   - Last Will and Testament plus online/offline status payloads
//   - MQTT topic filter validation and matching for the bridge routes
//
// # Architecture
//
// The paho client runs with auto-reconnect disabled. The link's own
// management loop dials, serves and backs off, so every ConnectionState
// transition is observable:
//
//	Dial (new paho client) → replay subscriptions → online status → send loop
//	                ↑                                                    │
//	                └──────────── backoff ← connection lost ←────────────┘
//
// Inbound messages never run routing logic on the paho goroutine; they are
// pushed into the bridge inbox and the call returns.
//
// # Security Considerations
//
//   - TLS (ssl://) verifies the broker certificate, min TLS 1.2
//   - ca_file pins a private CA; insecure_skip_verify is for lab brokers only
//
// # Usage
//
//	broker, err := mqtt.New(mqtt.Options{Config: cfg.MQTT, Outbound: q, Inbox: inbox})
//	if err != nil {
//	    return err
//	}
//	broker.Subscribe("sensors/#", 1)
//	go broker.Run(ctx)
//	broker.Publish("openiotai/gw", payload, 1, false)
package mqtt
