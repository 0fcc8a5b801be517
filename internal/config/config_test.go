package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
environment: PROD
log_level: debug
log_format: text
server:
  address: ":9090"
  session_ttl: 30m
optimizer:
  url: "http://optimizer.plant.local:5000/"
  token: service-token
identity:
  url: "http://identity.plant.local"
  token_ttl: 2h
db:
  host: db.plant.local
  port: 5433
  user: furnace
  password: secret
  name: history
  sslmode: require
tls:
  enable: true
  cert_file: cert.pem
  key_file: key.pem
  hostnames: [localhost, 127.0.0.1]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "PROD", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, "http://optimizer.plant.local:5000", cfg.Optimizer.URL)
	assert.Equal(t, "service-token", cfg.Optimizer.Token)
	assert.Equal(t, "http://identity.plant.local", cfg.Identity.URL)
	assert.Equal(t, 2*time.Hour, cfg.Identity.TokenTTL)
	assert.True(t, cfg.DatabaseEnabled())
	assert.Equal(t, "host=db.plant.local port=5433 user=furnace password=secret dbname=history sslmode=require", cfg.DatabaseDSN())
	assert.True(t, cfg.TLS.Enable)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.TLS.Hostnames)
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv("FURNACE_OPTIMIZER_URL", "http://env-optimizer:5000")
	t.Setenv("FURNACE_OPTIMIZER_TOKEN", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEV", cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, "http://env-optimizer:5000", cfg.Optimizer.URL)
	assert.Equal(t, "from-env", cfg.Optimizer.Token)
	assert.Equal(t, cfg.Optimizer.URL, cfg.Identity.URL, "identity defaults to the optimizer host")
	assert.False(t, cfg.DatabaseEnabled())
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"log level":     "log_level: loud\n",
		"log format":    "log_format: xml\n",
		"optimizer url": "optimizer:\n  url: not-a-url\n",
		"tls files":     "tls:\n  enable: true\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
