// Package config handles loading and validating the device-set actor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields, including the slot list
//   - Default value handling
//
// The slot list is validated here as well as in deviceset.New so that a bad
// config file reports every problem at once instead of the first.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/devset.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Actor.SlotNames())
package config
