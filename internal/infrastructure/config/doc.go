// Package config handles loading and validating leapbridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LEAPBRIDGE_* environment variables (via envconfig)
//   - Validation of required fields, bridges and managed devices
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, JWT secret) should be set via environment variables
//   - Bridge key material stays on disk; only its paths appear here
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, b := range cfg.Lutron.Bridges {
//	    fmt.Println(b.ID, b.Address)
//	}
package config
