package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trading-relay/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: relay-test
port: 8081
upstream:
  symbols: [R_10]
accounts:
  - label: demo
    token: file-token
`

func TestParseAndDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	c.ApplyDefaults()
	require.NoError(t, c.Validate())

	assert.Equal(t, "0.0.0.0", c.Host)
	assert.Equal(t, []string{"R_10"}, c.Upstream.Symbols)
	assert.Equal(t, "1089", c.Accounts[0].AppID)
	assert.Equal(t, 15*time.Second, c.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, c.RequestTimeout())
	assert.Equal(t, 30*time.Second, c.ReconnectMax())
	assert.Equal(t, 50, c.State.TickHistory)
	assert.Equal(t, 500, c.State.LogHistory)
	assert.Equal(t, "none", c.Storage.DBType)
	assert.Equal(t, 30*24*time.Hour, c.Retention())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DERIV_TOKEN", "env-token")
	t.Setenv("DERIV_APP_ID", "4242")
	t.Setenv("RELAY_PORT", "9100")
	t.Setenv("RELAY_UPSTREAM_URL", "ws://localhost:9999")

	c, err := Parse([]byte(`name: x`))
	require.NoError(t, err)
	require.NoError(t, c.ApplyEnv())
	c.ApplyDefaults()

	require.Len(t, c.Accounts, 1)
	assert.Equal(t, "env-token", c.Accounts[0].Token)
	assert.Equal(t, "4242", c.Accounts[0].AppID)
	assert.Equal(t, 9100, c.Port)
	assert.Equal(t, "ws://localhost:9999", c.Upstream.URL)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad port":       "port: 80",
		"bad url":        "upstream: {url: 'http://nope'}",
		"backoff order":  "upstream: {reconnect_base_seconds: 10, reconnect_max_seconds: 5}",
		"sqlite no path": "storage: {db_type: sqlite}",
		"unknown db":     "storage: {db_type: mongo}",
		"kafka no topic": "analytics: {sources: [{name: a, type: kafka, brokers: ['b:9092']}]}",
		"amqp no queue":  "analytics: {sources: [{name: a, type: amqp, url: 'amqp://x'}]}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(body))
			require.NoError(t, err)
			c.ApplyDefaults()
			err = c.Validate()
			require.Error(t, err)
			assert.Equal(t, helpers.KindConfiguration, helpers.KindOf(err))
		})
	}
}

func TestSaveStripsTokens(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	c.ApplyDefaults()

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, c.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "file-token")
	assert.Equal(t, "file-token", c.Accounts[0].Token, "in-memory config untouched")

	reloaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "relay-test", reloaded.Name)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
