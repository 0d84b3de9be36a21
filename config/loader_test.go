package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/errors"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"app": {"log_level": "debug"},
		"server": {"port": 9100, "request_timeout": "10s"},
		"storage": {
			"backend": "nats",
			"operation_timeout": "2s",
			"nats": {"urls": ["nats://a:4222", "nats://b:4222"], "bucket": "schemas"}
		},
		"cache": {"ttl": 120}
	}`)

	cfg, err := NewLoader().WithEnv(noEnv).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "json", cfg.App.LogFormat)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.Timeout())
	assert.Equal(t, 2*time.Second, cfg.Storage.OperationTimeout.Std())
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Storage.NATS.URLs)
	assert.Equal(t, "schemas", cfg.Storage.NATS.Bucket)
	assert.Equal(t, 120*time.Second, cfg.Cache.TTL.Std())
	assert.Equal(t, DefaultListTTL, cfg.Cache.ListTTL.Std())
	assert.True(t, cfg.Storage.FallbackToMemory)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  log_format: text
storage:
  backend: sqlite
  fallback_to_memory: false
  sqlite:
    path: ./data/schemas.db
cache:
  list_ttl: 1m
notify:
  queue_size: 16
`)

	cfg, err := NewLoader().WithEnv(noEnv).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.False(t, cfg.Storage.FallbackToMemory)
	assert.Equal(t, "./data/schemas.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, time.Minute, cfg.Cache.ListTTL.Std())
	assert.Equal(t, 16, cfg.Notify.QueueSize)
}

func TestLoadLayersOverride(t *testing.T) {
	base := writeFile(t, "base.json", `{"server": {"port": 9000}, "cache": {"ttl": "30s"}}`)
	prod := writeFile(t, "prod.yml", "server:\n  host: 0.0.0.0\ncache:\n  ttl: 90s\n")

	loader := NewLoader().WithEnv(noEnv)
	loader.AddLayer(base)
	loader.AddLayer(prod)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL.Std())
}

func TestEnvOverrides(t *testing.T) {
	env := envMap(map[string]string{
		"SCHEMAREGISTRY_PORT":               "8100",
		"SCHEMAREGISTRY_STORAGE_BACKEND":    "memory",
		"SCHEMAREGISTRY_NATS_URLS":          "nats://x:4222, nats://y:4222",
		"SCHEMAREGISTRY_CACHE_TTL":          "45s",
		"SCHEMAREGISTRY_FALLBACK_TO_MEMORY": "false",
		"SCHEMAREGISTRY_STRICT_ENUMS":       "true",
		"SCHEMAREGISTRY_CORS_ORIGINS":       "https://a.example.com",
		"SCHEMAREGISTRY_ENABLE_CORS":        "true",
		"SCHEMAREGISTRY_TLS_ENABLED":        "true",
		"SCHEMAREGISTRY_TLS_CERT_FILE":      "/etc/registry/tls.pem",
		"SCHEMAREGISTRY_TLS_KEY_FILE":       "/etc/registry/tls-key.pem",
	})

	cfg, err := NewLoader().WithEnv(env).Load()
	require.NoError(t, err)

	assert.Equal(t, 8100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []string{"nats://x:4222", "nats://y:4222"}, cfg.Storage.NATS.URLs)
	assert.Equal(t, 45*time.Second, cfg.Cache.TTL.Std())
	assert.False(t, cfg.Storage.FallbackToMemory)
	assert.True(t, cfg.App.StrictEnums)
	assert.Equal(t, []string{"https://a.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.TLS.Enabled)
	assert.Equal(t, "/etc/registry/tls.pem", cfg.Server.TLS.CertFile)
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := map[string]string{
		"SCHEMAREGISTRY_PORT":              "eighty",
		"SCHEMAREGISTRY_METRICS_ENABLED":   "maybe",
		"SCHEMAREGISTRY_OPERATION_TIMEOUT": "later",
		"SCHEMAREGISTRY_LOG_LEVEL":         "a\x00b",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := NewLoader().WithEnv(envMap(map[string]string{key: val})).Load()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().WithEnv(noEnv).LoadFile(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := NewLoader().WithEnv(noEnv).LoadFile(writeFile(t, "bad.json", `{"app": `))
		assert.Error(t, err)
	})

	t.Run("too deep", func(t *testing.T) {
		deep := strings.Repeat(`{"a":`, 120) + "1" + strings.Repeat("}", 120)
		_, err := NewLoader().WithEnv(noEnv).LoadFile(writeFile(t, "deep.json", deep))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too deep")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := NewLoader().WithEnv(noEnv).LoadFile(writeFile(t, "typed.yaml", "server:\n  port: high\n"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := NewLoader().WithEnv(noEnv).LoadFile(writeFile(t, "invalid.json", `{"storage": {"backend": "etcd"}}`))
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("validation disabled", func(t *testing.T) {
		loader := NewLoader().WithEnv(noEnv)
		loader.EnableValidation(false)
		cfg, err := loader.LoadFile(writeFile(t, "invalid.json", `{"storage": {"backend": "etcd"}}`))
		require.NoError(t, err)
		assert.Equal(t, "etcd", cfg.Storage.Backend)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := NewLoader().WithEnv(noEnv).LoadFile(writeFile(t, "config.ini", "x=1"))
		assert.Error(t, err)
	})
}
