// Package config handles loading and validating Gray Logic Relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Deriving per-socket defaults that YAML cannot pre-populate
//   - Overriding secrets and hosts with environment variables
//   - Validation of links, routes and sinks, reporting every problem at once
//
// Security Considerations:
//   - MQTT passwords, socket tokens and JWT secrets should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/relay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.ID)
package config
