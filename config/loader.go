package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/schemaregistry/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCHEMAREGISTRY"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  EnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// WithEnv replaces the environment lookup, for tests.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load starts from Default, merges every layer, applies environment
// overrides and validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = l.mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a JSON or YAML file into a generic map.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
		}
	default:
		if err := checkJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
		}
	}
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// env returns the validated value of PREFIX_name.
func (l *Loader) env(name string) (string, bool, error) {
	key := l.envPrefix + "_" + name
	val, ok := l.lookupEnv(key)
	if !ok || val == "" {
		return "", false, nil
	}
	if err := checkEnvValue(key, val); err != nil {
		return "", false, err
	}
	return val, true, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) error {
		val, ok, err := l.env(name)
		if ok {
			*dst = val
		}
		return err
	}
	list := func(name string, dst *[]string) error {
		val, ok, err := l.env(name)
		if ok {
			*dst = splitList(val)
		}
		return err
	}
	integer := func(name string, dst *int) error {
		val, ok, err := l.env(name)
		if err != nil || !ok {
			return err
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, name, err)
		}
		*dst = n
		return nil
	}
	boolean := func(name string, dst *bool) error {
		val, ok, err := l.env(name)
		if err != nil || !ok {
			return err
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, name, err)
		}
		*dst = b
		return nil
	}
	duration := func(name string, dst *Duration) error {
		val, ok, err := l.env(name)
		if err != nil || !ok {
			return err
		}
		d, err := parseDurationWithDays(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, name, err)
		}
		*dst = Duration(d)
		return nil
	}

	overrides := []error{
		str("LOG_LEVEL", &cfg.App.LogLevel),
		str("LOG_FORMAT", &cfg.App.LogFormat),
		boolean("STRICT_ENUMS", &cfg.App.StrictEnums),

		str("HOST", &cfg.Server.Host),
		integer("PORT", &cfg.Server.Port),
		boolean("ENABLE_CORS", &cfg.Server.EnableCORS),
		list("CORS_ORIGINS", &cfg.Server.CORSOrigins),
		boolean("TLS_ENABLED", &cfg.Server.TLS.Enabled),
		str("TLS_CERT_FILE", &cfg.Server.TLS.CertFile),
		str("TLS_KEY_FILE", &cfg.Server.TLS.KeyFile),

		str("STORAGE_BACKEND", &cfg.Storage.Backend),
		boolean("FALLBACK_TO_MEMORY", &cfg.Storage.FallbackToMemory),
		duration("OPERATION_TIMEOUT", &cfg.Storage.OperationTimeout),
		list("NATS_URLS", &cfg.Storage.NATS.URLs),
		str("NATS_BUCKET", &cfg.Storage.NATS.Bucket),
		str("NATS_USERNAME", &cfg.Storage.NATS.Username),
		str("NATS_PASSWORD", &cfg.Storage.NATS.Password),
		str("NATS_TOKEN", &cfg.Storage.NATS.Token),
		str("SQLITE_PATH", &cfg.Storage.SQLite.Path),

		str("CACHE_BACKEND", &cfg.Cache.Backend),
		duration("CACHE_TTL", &cfg.Cache.TTL),
		duration("CACHE_LIST_TTL", &cfg.Cache.ListTTL),

		boolean("MIRROR_TO_NATS", &cfg.Notify.MirrorToNATS),

		boolean("METRICS_ENABLED", &cfg.Metrics.Enabled),
		integer("METRICS_PORT", &cfg.Metrics.Port),
	}
	for _, err := range overrides {
		if err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// marshalFor encodes cfg as YAML for .yaml/.yml paths and JSON otherwise.
func marshalFor(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// Round-trip through JSON so YAML keys match the JSON tags.
		data, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return yaml.Marshal(m)
	default:
		return json.MarshalIndent(cfg, "", "  ")
	}
}
