package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func writeTestConfig(t *testing.T, path string) *Config {
	t.Helper()
	cfg := Defaults()
	cfg.DataDir = "/tmp/linkbridge-test"
	cfg.Server.Slot = "Ada"
	cfg.Server.Password = "hunter2-secret"
	cfg.Links.DeathLink = true
	require.NoError(t, Save(path, cfg))
	return cfg
}

func TestLoadWritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 50, cfg.Timing.TickMs)
	assert.Equal(t, 2000, cfg.Timing.TrapCooldownMs)
	assert.Equal(t, "@every 30s", cfg.Housekeeping.Schedule)

	_, err = os.Stat(path)
	assert.NoError(t, err, "defaults should be written on first load")
}

func TestSaveReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)
	original := writeTestConfig(t, path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path)

	t.Setenv("LINKBRIDGE_SERVER_PORT", "40000")
	t.Setenv("LINKBRIDGE_LINKS_TRAP_LINK", "true")
	t.Setenv("LINKBRIDGE_ROOM_URL", "ws://relay:8765")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40000, cfg.Server.Port)
	assert.True(t, cfg.Links.TrapLink)
	assert.Equal(t, "ws://relay:8765", cfg.Room.URL)
	assert.Equal(t, "Ada", cfg.Server.Slot, "file values survive")
}

func TestLoadEnvParseError(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path)
	t.Setenv("LINKBRIDGE_TIMING_TICK_MS", "soon")

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse env")
}

func TestLoadMalformedFile(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	writeTestConfig(t, path)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestSessionURL(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "ws://localhost:38281", cfg.SessionURL())
	assert.Equal(t, "localhost:38281", cfg.Endpoint())

	cfg.Server.Host = "wss://archipelago.gg"
	assert.Equal(t, "wss://archipelago.gg:38281", cfg.SessionURL())

	cfg.Server.Host = ""
	assert.Empty(t, cfg.SessionURL())
}

func TestListValues(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Password = "hunter2-secret"

	plain, err := ListValues(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "hunter2-secret", plain["server.password"])
	assert.Equal(t, 38281.0, plain["server.port"], "JSON numbers decode as float64")

	masked, err := ListValues(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, "***cret", masked["server.password"])
	assert.Equal(t, "localhost", masked["server.host"])
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path)

	v, err := GetValue(path, "server.slot")
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)

	_, err = GetValue(path, "server.nope")
	assert.EqualError(t, err, "unknown config key: server.nope")

	_, err = GetValue(filepath.Join(t.TempDir(), "missing.json"), "server.slot")
	assert.Error(t, err)
}

func TestSetValue(t *testing.T) {
	tests := []struct {
		key   string
		raw   string
		check func(t *testing.T, cfg *Config)
	}{
		{"server.slot", "Grace", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "Grace", cfg.Server.Slot)
		}},
		{"timing.trap_cooldown_ms", "500", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 500, cfg.Timing.TrapCooldownMs)
		}},
		{"links.ring_link", "true", func(t *testing.T, cfg *Config) {
			assert.True(t, cfg.Links.RingLink)
		}},
		{"housekeeping.schedule", "@hourly", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "@hourly", cfg.Housekeeping.Schedule)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path := tempConfigPath(t)
			writeTestConfig(t, path)

			require.NoError(t, SetValue(path, tt.key, tt.raw))
			cfg, err := Load(path)
			require.NoError(t, err)
			tt.check(t, cfg)
			assert.True(t, cfg.Links.DeathLink, "other keys survive")
		})
	}
}

func TestSetValueRejectsInvalid(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want string
	}{
		{"extra.nested.flag", "true", "unknown config key: extra.nested.flag"},
		{"links.death_link", "yes please", `links.death_link: expected true or false, got "yes please"`},
		{"timing.poll_ms", "0", "timing.poll_ms: 0 out of range [10, 60000]"},
		{"timing.tick_ms", "fast", `timing.tick_ms: expected an integer, got "fast"`},
		{"server.port", "70000", "server.port: 70000 out of range [1, 65535]"},
		{"log_level", "loud", "log_level: must be one of debug, info, warn, error"},
		{"housekeeping.schedule", " ", "housekeeping.schedule: must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path := tempConfigPath(t)
			writeTestConfig(t, path)
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			assert.EqualError(t, SetValue(path, tt.key, tt.raw), tt.want)
			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after, "file untouched")
		})
	}
}

func TestGetValueFallsBackToDefault(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"slot": "Ada"}}`), 0644))

	v, err := GetValue(path, "timing.poll_ms")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, v)
}

func TestSetValueNonexistentFile(t *testing.T) {
	err := SetValue(filepath.Join(t.TempDir(), "missing.json"), "server.slot", "x")
	assert.Error(t, err)
}
