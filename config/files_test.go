package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"config.json", false},
		{"configs/registry.yaml", false},
		{"/etc/registry/config.yml", false},
		{"", true},
		{"config.toml", true},
		{"../outside.json", true},
		{"a/../../outside.json", true},
		{"/" + strings.Repeat("a", maxPathLen) + ".json", true},
	}
	for _, tt := range tests {
		err := checkConfigPath(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
		} else {
			assert.NoError(t, err, tt.path)
		}
	}
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "ok.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"app":{}}`), 0o600))
	data, err := readConfigFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"app":{}}`, string(data))

	notFile := filepath.Join(dir, "dir.json")
	require.NoError(t, os.Mkdir(notFile, 0o755))
	_, err = readConfigFile(notFile)
	assert.ErrorContains(t, err, "not a regular file")

	_, err = readConfigFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestWriteConfigFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeConfigFile(path, []byte(`{}`)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Error(t, writeConfigFile(filepath.Join(t.TempDir(), "out.txt"), []byte(`{}`)))
}

func TestCheckJSONDepth(t *testing.T) {
	assert.NoError(t, checkJSONDepth([]byte(`{"a":[{"b":"[[[{{{"}]}`)))
	assert.NoError(t, checkJSONDepth([]byte(strings.Repeat("[", maxJSONDepth)+strings.Repeat("]", maxJSONDepth))))

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	assert.ErrorContains(t, checkJSONDepth([]byte(deep)), "too deep")
	assert.Error(t, checkJSONDepth([]byte(`{"a": [}`)))
}

func TestCheckEnvValue(t *testing.T) {
	assert.NoError(t, checkEnvValue("K", ""))
	assert.NoError(t, checkEnvValue("K", "value"))
	assert.Error(t, checkEnvValue("K", "a\x00b"))
	assert.Error(t, checkEnvValue("K", strings.Repeat("x", maxEnvVarLen+1)))
}
