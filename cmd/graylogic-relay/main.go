// Gray Logic Relay bridges an MQTT broker and WebSocket peers.
//
// Each side is a link that reconnects on its own with backoff. Messages
// received on one side are routed through bounded queues to the other,
// so either side may be down without blocking or losing the newest data.
//
// Usage:
//
//	graylogic-relay run --config configs/relay.yaml
//	graylogic-relay validate --config configs/relay.yaml
//	graylogic-relay token panel --ttl 720h
//	graylogic-relay version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}
