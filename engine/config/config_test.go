package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Cache.EvictionThreshold)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Context.MutationTimeout))
	assert.Equal(t, TransportWorker, cfg.Context.Transport)

	set, err := cfg.CapabilitySet()
	require.NoError(t, err)
	assert.Empty(t, set.List())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[cache]
eviction_threshold = 2

[context]
capabilities = "messaging, material-properties"
mutation_timeout = "250ms"
transport = "websocket"
sandbox_url = "ws://localhost:8787/"
grant_secret = "s3cret"

[log]
verbosity = 2
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Cache.EvictionThreshold)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Context.MutationTimeout))
	assert.Equal(t, time.Hour, time.Duration(cfg.Context.GrantTTL))
	assert.Equal(t, "127.0.0.1:8787", cfg.Sandbox.ListenAddr)
	assert.Equal(t, 2, cfg.Log.Verbosity)

	set, err := cfg.CapabilitySet()
	require.NoError(t, err)
	assert.Equal(t, []capability.Capability{capability.Messaging, capability.MaterialProperties}, set.List())
}

func TestParseRejectsBadConfig(t *testing.T) {
	for name, text := range map[string]string{
		"unknown key":        "[cache]\nsize = 3\n",
		"bad duration":       "[context]\nmutation_timeout = \"soon\"\n",
		"negative threshold": "[cache]\neviction_threshold = -1\n",
		"unknown capability": "[context]\ncapabilities = \"teleport\"\n",
		"unknown transport":  "[context]\ntransport = \"pigeon\"\n",
		"websocket no url":   "[context]\ntransport = \"websocket\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(text))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Sandbox.StartupScript = "boot.go"
	data, err := cfg.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "threedom.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
