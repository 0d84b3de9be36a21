package gateway

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/pkg/tlsutil"
)

// Defaults.
const (
	DefaultPort           = 8000
	DefaultMaxRequestSize = 1024 * 1024
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds configuration for the HTTP gateway
type Config struct {
	// Host to bind; empty binds every interface
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port to listen on (default: 8000)
	Port int `json:"port" yaml:"port"`

	// EnableCORS enables CORS headers (default: false, requires explicit cors_origins)
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (required when EnableCORS is true)
	// Use ["*"] for development only
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`

	// TimeoutStr bounds each request (default: "30s")
	TimeoutStr string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`

	// TLS serves HTTPS and WSS when enabled, optionally verifying client certificates
	TLS tlsutil.ServerConfig `json:"tls,omitempty" yaml:"tls,omitempty"`

	// timeout is the parsed duration (internal use)
	timeout time.Duration
}

// Validate ensures the gateway configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = DefaultMaxRequestSize
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.TimeoutStr == "" {
		c.timeout = DefaultRequestTimeout
	} else {
		parsed, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid request_timeout format: %s", c.TimeoutStr))
		}
		c.timeout = parsed
	}
	if c.timeout < 100*time.Millisecond || c.timeout > 5*time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request_timeout must be between 100ms and 5m")
	}

	// CORS requires explicit origin configuration
	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	return c.TLS.Validate()
}

// Timeout returns the parsed request timeout, or the default before Validate
func (c *Config) Timeout() time.Duration {
	if c.timeout == 0 {
		return DefaultRequestTimeout
	}
	return c.timeout
}

// Addr returns the listen address
func (c *Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		EnableCORS:     false,
		CORSOrigins:    []string{},
		MaxRequestSize: DefaultMaxRequestSize,
		TimeoutStr:     DefaultRequestTimeout.String(),
	}
}
