// Package config loads and validates the schema registry's configuration.
//
// A Config starts from Default, then each file layer is merged on top (JSON
// or YAML, chosen by extension), then SCHEMAREGISTRY_* environment variables
// override individual fields:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.yaml")
//	cfg, err := loader.Load()
//
// Durations accept Go duration strings, a day suffix ("14d") or a plain
// number of seconds. Validation errors are classified Invalid and wrap
// errors.ErrInvalidConfig.
//
// SafeConfig guards a Config shared between goroutines. Get returns a deep
// copy so callers cannot mutate the shared value.
package config
