package gateway_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/gateway"
	"github.com/c360/schemaregistry/pkg/tlsutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      gateway.Config
		expectError bool
	}{
		{name: "zero value gets defaults", config: gateway.Config{}},
		{name: "defaults", config: gateway.DefaultConfig()},
		{name: "cors with origins", config: gateway.Config{EnableCORS: true, CORSOrigins: []string{"*"}}},
		{name: "cors without origins", config: gateway.Config{EnableCORS: true}, expectError: true},
		{name: "negative port", config: gateway.Config{Port: -1}, expectError: true},
		{name: "port too large", config: gateway.Config{Port: 70000}, expectError: true},
		{name: "negative body limit", config: gateway.Config{MaxRequestSize: -1}, expectError: true},
		{name: "body limit too large", config: gateway.Config{MaxRequestSize: 200 * 1024 * 1024}, expectError: true},
		{name: "bad timeout", config: gateway.Config{TimeoutStr: "soon"}, expectError: true},
		{name: "timeout too short", config: gateway.Config{TimeoutStr: "10ms"}, expectError: true},
		{name: "timeout too long", config: gateway.Config{TimeoutStr: "1h"}, expectError: true},
		{name: "tls without key", config: gateway.Config{TLS: tlsutil.ServerConfig{Enabled: true, CertFile: "cert.pem"}}, expectError: true},
		{name: "tls", config: gateway.Config{TLS: tlsutil.ServerConfig{Enabled: true, CertFile: "cert.pem", KeyFile: "key.pem"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigDefaultsApplied(t *testing.T) {
	cfg := gateway.Config{TimeoutStr: "2s"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, gateway.DefaultPort, cfg.Port)
	assert.Equal(t, int64(gateway.DefaultMaxRequestSize), cfg.MaxRequestSize)
	assert.Equal(t, 2*time.Second, cfg.Timeout())
	assert.Equal(t, ":8000", cfg.Addr())
}

func TestConfigAddr(t *testing.T) {
	cfg := gateway.Config{Host: "127.0.0.1", Port: 9001}
	assert.Equal(t, "127.0.0.1:9001", cfg.Addr())
	assert.Equal(t, gateway.DefaultRequestTimeout, cfg.Timeout())
}
