package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/gateway"
	"github.com/c360/schemaregistry/pkg/cache"
	"github.com/c360/schemaregistry/storage"
	"github.com/c360/schemaregistry/storage/kvstore"
)

// Defaults applied before any file or environment layer.
const (
	DefaultCacheTTL          = 600 * time.Second
	DefaultListTTL           = 300 * time.Second
	DefaultCounterTTL        = 3600 * time.Second
	DefaultOperationTimeout  = 5 * time.Second
	DefaultMaxCommitAttempts = 5
	DefaultQueueSize         = 1024
	DefaultDeliverTimeout    = 5 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultCacheBucket       = "schemaregistry_cache"
	DefaultSQLitePath        = "schemaregistry.db"
	DefaultNATSURL           = "nats://localhost:4222"
)

// Config is the complete server configuration.
type Config struct {
	App     AppConfig      `json:"app"`
	Server  gateway.Config `json:"server"`
	Storage StorageConfig  `json:"storage"`
	Cache   CacheConfig    `json:"cache"`
	Notify  NotifyConfig   `json:"notify"`
	Metrics MetricsConfig  `json:"metrics"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name            string   `json:"name"`
	LogLevel        string   `json:"log_level"`
	LogFormat       string   `json:"log_format"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`

	// StrictEnums treats adding an enum to an unrestricted field as breaking.
	StrictEnums bool `json:"strict_enums"`
}

// StorageConfig selects and configures the schema backend.
type StorageConfig struct {
	Backend           string       `json:"backend"` // nats, sqlite or memory
	FallbackToMemory  bool         `json:"fallback_to_memory"`
	OperationTimeout  Duration     `json:"operation_timeout"`
	MaxCommitAttempts int          `json:"max_commit_attempts"`
	NATS              NATSConfig   `json:"nats"`
	SQLite            SQLiteConfig `json:"sqlite"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	Bucket        string        `json:"bucket"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait Duration      `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// SQLiteConfig locates the embedded database.
type SQLiteConfig struct {
	Path string `json:"path"`
}

// CacheConfig configures the read cache.
type CacheConfig struct {
	Backend         string   `json:"backend"` // memory or external
	Bucket          string   `json:"bucket"`
	TTL             Duration `json:"ttl"`
	ListTTL         Duration `json:"list_ttl"`
	CounterTTL      Duration `json:"counter_ttl"`
	CleanupInterval Duration `json:"cleanup_interval"`
}

// NotifyConfig configures the notification hub.
type NotifyConfig struct {
	QueueSize      int      `json:"queue_size"`
	DeliverTimeout Duration `json:"deliver_timeout"`
	MirrorToNATS   bool     `json:"mirror_to_nats"`
}

// MetricsConfig configures Prometheus exposition. Port 0 serves metrics only
// on the gateway's /metrics route.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no layer overrides a value.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "schemaregistry",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Server: gateway.DefaultConfig(),
		Storage: StorageConfig{
			Backend:           storage.BackendNATS,
			FallbackToMemory:  true,
			OperationTimeout:  Duration(DefaultOperationTimeout),
			MaxCommitAttempts: DefaultMaxCommitAttempts,
			NATS: NATSConfig{
				URLs:          []string{DefaultNATSURL},
				Bucket:        kvstore.DefaultBucket,
				MaxReconnects: -1,
				ReconnectWait: Duration(2 * time.Second),
			},
			SQLite: SQLiteConfig{Path: DefaultSQLitePath},
		},
		Cache: CacheConfig{
			Backend:         cache.BackendMemory,
			Bucket:          DefaultCacheBucket,
			TTL:             Duration(DefaultCacheTTL),
			ListTTL:         Duration(DefaultListTTL),
			CounterTTL:      Duration(DefaultCounterTTL),
			CleanupInterval: Duration(time.Minute),
		},
		Notify: NotifyConfig{
			QueueSize:      DefaultQueueSize,
			DeliverTimeout: Duration(DefaultDeliverTimeout),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the config and normalizes derived fields. Errors are Invalid.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Config", "Validate", "config validation")
	}
	return nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level %q must be debug, info, warn or error", c.App.LogLevel)
	}
	switch c.App.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("app.log_format %q must be json or text", c.App.LogFormat)
	}
	if c.App.ShutdownTimeout < 0 {
		return fmt.Errorf("app.shutdown_timeout cannot be negative")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.validateStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be positive")
	}
	if c.Notify.DeliverTimeout <= 0 {
		return fmt.Errorf("notify.deliver_timeout must be positive")
	}
	if c.Notify.MirrorToNATS && len(c.Storage.NATS.URLs) == 0 {
		return fmt.Errorf("notify.mirror_to_nats requires storage.nats.urls")
	}

	if c.Metrics.Enabled && c.Metrics.Port != 0 {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return fmt.Errorf("metrics.port %d collides with server.port", c.Metrics.Port)
		}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := &c.Storage
	switch s.Backend {
	case storage.BackendNATS:
		if err := s.NATS.validate(); err != nil {
			return err
		}
	case storage.BackendSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("backend %q must be nats, sqlite or memory", s.Backend)
	}
	if s.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout must be positive")
	}
	if s.MaxCommitAttempts < 1 {
		return fmt.Errorf("max_commit_attempts must be at least 1")
	}
	return nil
}

func (n *NATSConfig) validate() error {
	if len(n.URLs) == 0 {
		return fmt.Errorf("nats.urls is required")
	}
	if n.Bucket == "" {
		return fmt.Errorf("nats.bucket is required")
	}
	if n.TLS.Enabled && (n.TLS.CertFile == "") != (n.TLS.KeyFile == "") {
		return fmt.Errorf("nats.tls cert_file and key_file must be set together")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case cache.BackendMemory:
	case cache.BackendExternal:
		if err := c.Storage.NATS.validate(); err != nil {
			return fmt.Errorf("external backend: %w", err)
		}
		if c.Cache.Bucket == "" {
			return fmt.Errorf("bucket is required for the external backend")
		}
	default:
		return fmt.Errorf("backend %q must be memory or external", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 || c.Cache.ListTTL <= 0 || c.Cache.CounterTTL <= 0 {
		return fmt.Errorf("ttl, list_ttl and counter_ttl must be positive")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cleanup_interval cannot be negative")
	}
	return nil
}

// UsesNATS reports whether any component needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.Storage.Backend == storage.BackendNATS ||
		c.Cache.Backend == cache.BackendExternal ||
		c.Notify.MirrorToNATS
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	// The parsed request timeout is unexported and does not survive JSON.
	_ = clone.Server.Validate()
	return &clone
}

// Redacted returns a copy with credentials masked.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	if clone.Storage.NATS.Password != "" {
		clone.Storage.NATS.Password = "***"
	}
	if clone.Storage.NATS.Token != "" {
		clone.Storage.NATS.Token = "***"
	}
	return clone
}

// SaveToFile saves the configuration as JSON or YAML, chosen by extension.
func (c *Config) SaveToFile(path string) error {
	data, err := marshalFor(path, c)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode config")
	}
	return writeConfigFile(path, data)
}

// String returns a JSON representation of the config with credentials masked.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
