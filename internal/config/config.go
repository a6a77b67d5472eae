package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DataDir  string `json:"data_dir" env:"LINKBRIDGE_DATA_DIR"`
	LogLevel string `json:"log_level" env:"LINKBRIDGE_LOG_LEVEL"`
	Server   struct {
		Host     string `json:"host" env:"LINKBRIDGE_SERVER_HOST"`
		Port     int    `json:"port" env:"LINKBRIDGE_SERVER_PORT"`
		Slot     string `json:"slot" env:"LINKBRIDGE_SERVER_SLOT"`
		Password string `json:"password" env:"LINKBRIDGE_SERVER_PASSWORD"`
		Game     string `json:"game" env:"LINKBRIDGE_SERVER_GAME"`
	} `json:"server"`
	Room struct {
		URL    string `json:"url" env:"LINKBRIDGE_ROOM_URL"`
		Room   string `json:"room" env:"LINKBRIDGE_ROOM_ROOM"`
		PeerID string `json:"peer_id" env:"LINKBRIDGE_ROOM_PEER_ID"`
	} `json:"room"`
	Relay struct {
		Listen string `json:"listen" env:"LINKBRIDGE_RELAY_LISTEN"`
	} `json:"relay"`
	HTTP struct {
		Enabled bool   `json:"enabled" env:"LINKBRIDGE_HTTP_ENABLED"`
		Listen  string `json:"listen" env:"LINKBRIDGE_HTTP_LISTEN"`
	} `json:"http"`
	Timing struct {
		TickMs         int `json:"tick_ms" env:"LINKBRIDGE_TIMING_TICK_MS"`
		PollMs         int `json:"poll_ms" env:"LINKBRIDGE_TIMING_POLL_MS"`
		TrapCooldownMs int `json:"trap_cooldown_ms" env:"LINKBRIDGE_TIMING_TRAP_COOLDOWN_MS"`
	} `json:"timing"`
	Pool struct {
		Key string `json:"key" env:"LINKBRIDGE_POOL_KEY"`
	} `json:"pool"`
	Links struct {
		DeathLink   bool   `json:"death_link" env:"LINKBRIDGE_LINKS_DEATH_LINK"`
		TrapLink    bool   `json:"trap_link" env:"LINKBRIDGE_LINKS_TRAP_LINK"`
		RingLink    bool   `json:"ring_link" env:"LINKBRIDGE_LINKS_RING_LINK"`
		DeathEffect string `json:"death_effect" env:"LINKBRIDGE_LINKS_DEATH_EFFECT"`
		RingStatus  string `json:"ring_status" env:"LINKBRIDGE_LINKS_RING_STATUS"`
	} `json:"links"`
	Housekeeping struct {
		Schedule string `json:"schedule" env:"LINKBRIDGE_HOUSEKEEPING_SCHEDULE"`
	} `json:"housekeeping"`
}

// Defaults returns the configuration written on first load.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".linkbridge"),
		LogLevel: "info",
	}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 38281
	cfg.Server.Game = "Trailhead"
	cfg.Room.Room = "default"
	cfg.Relay.Listen = ":8765"
	cfg.HTTP.Listen = "127.0.0.1:8766"
	cfg.Timing.TickMs = 50
	cfg.Timing.PollMs = 1000
	cfg.Timing.TrapCooldownMs = 2000
	cfg.Pool.Key = "linkbridge_pool"
	cfg.Links.DeathEffect = "Faint"
	cfg.Links.RingStatus = "coins"
	cfg.Housekeeping.Schedule = "@every 30s"
	return cfg
}

// Load reads path, writing defaults when the file does not exist, then
// applies LINKBRIDGE_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Endpoint returns the session server as host:port.
func (c *Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SessionURL returns the websocket URL of the session server.
func (c *Config) SessionURL() string {
	if c.Server.Host == "" {
		return ""
	}
	if strings.Contains(c.Server.Host, "://") {
		return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
	}
	return fmt.Sprintf("ws://%s:%d", c.Server.Host, c.Server.Port)
}

// Save writes cfg atomically.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a generic map through its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns every value keyed by dot path, secrets masked if asked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue reads one dot-path key from the file at path. Keys missing from
// an older file report their default.
func GetValue(path, key string) (any, error) {
	if _, ok := keyRules[key]; !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(m)[key]; ok {
		return v, nil
	}
	defaults, err := ListValues(Defaults(), false)
	if err != nil {
		return nil, err
	}
	return defaults[key], nil
}

// SetValue validates value for key and writes it into the file at path.
func SetValue(path, key, value string) error {
	parsed, err := ParseValue(key, value)
	if err != nil {
		return err
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	flat[key] = parsed
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
