package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config defines server and client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	DB        DBConfig        `yaml:"db" toml:"db"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Credits   CreditsConfig   `yaml:"credits" toml:"credits"`
	Sync      SyncConfig      `yaml:"sync" toml:"sync"`
	Remote    RemoteConfig    `yaml:"remote" toml:"remote"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	// Path sends logs to a size-capped file instead of stdout.
	Path string `yaml:"path" toml:"path"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// DefaultTenant is used when auth is disabled.
	DefaultTenant string `yaml:"default_tenant" toml:"default_tenant"`
}

type TransportConfig struct {
	// Mode is "http" or "stdio" (MCP only).
	Mode string `yaml:"mode" toml:"mode"`
}

// CreditsConfig is ledger policy on the server and polling on the client.
type CreditsConfig struct {
	DailyAmount   int64         `yaml:"daily_amount" toml:"daily_amount"`
	RefreshWindow time.Duration `yaml:"refresh_window" toml:"refresh_window"`
	PollInterval  time.Duration `yaml:"poll_interval" toml:"poll_interval"`
}

type SyncConfig struct {
	DraftDebounce   time.Duration `yaml:"draft_debounce" toml:"draft_debounce"`
	SessionDebounce time.Duration `yaml:"session_debounce" toml:"session_debounce"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Token   string        `yaml:"token" toml:"token"`
	// UserID is the account the CLI acts on.
	UserID  string        `yaml:"user_id" toml:"user_id"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	// Push selects the websocket balance channel over polling.
	Push bool `yaml:"push" toml:"push"`
}

type CacheConfig struct {
	// Path is the client-side SQLite cache. ":memory:" disables durability.
	Path string `yaml:"path" toml:"path"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" toml:"per_minute"`
	Burst     int `yaml:"burst" toml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "promptsync.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			Enabled:       true,
			DefaultTenant: "default",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Credits: CreditsConfig{
			DailyAmount:   10,
			RefreshWindow: 24 * time.Hour,
			PollInterval:  30 * time.Second,
		},
		Sync: SyncConfig{
			DraftDebounce:   500 * time.Millisecond,
			SessionDebounce: 1000 * time.Millisecond,
		},
		Remote: RemoteConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Path: "promptsync-cache.db",
		},
		RateLimit: RateLimitConfig{
			PerMinute: 120,
			Burst:     30,
		},
	}
}

// Load reads configuration from an optional YAML or TOML file and
// environment variables.
func Load() (Config, error) {
	return LoadPath(os.Getenv("PROMPTSYNC_CONFIG_PATH"))
}

// LoadPath is Load with an explicit config file. An empty path skips the
// file.
func LoadPath(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile merges the file at path into cfg. The format follows the
// extension; anything other than .toml is read as YAML.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}
	return nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Transport.Mode != "http" && c.Transport.Mode != "stdio":
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	case c.Credits.DailyAmount <= 0:
		return fmt.Errorf("credits.daily_amount must be positive")
	case c.Credits.RefreshWindow <= 0:
		return fmt.Errorf("credits.refresh_window must be positive")
	case c.Credits.PollInterval <= 0:
		return fmt.Errorf("credits.poll_interval must be positive")
	case c.Sync.DraftDebounce <= 0 || c.Sync.SessionDebounce <= 0:
		return fmt.Errorf("sync debounce intervals must be positive")
	case c.RateLimit.PerMinute < 0:
		return fmt.Errorf("rate_limit.per_minute must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("PROMPTSYNC_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PROMPTSYNC_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid PROMPTSYNC_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("PROMPTSYNC_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("PROMPTSYNC_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("PROMPTSYNC_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if enabled := os.Getenv("PROMPTSYNC_AUTH_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid PROMPTSYNC_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if mode := os.Getenv("PROMPTSYNC_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if amount := os.Getenv("PROMPTSYNC_DAILY_AMOUNT"); amount != "" {
		v, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid PROMPTSYNC_DAILY_AMOUNT: %w", err)
		}
		cfg.Credits.DailyAmount = v
	}
	if err := envDuration("PROMPTSYNC_REFRESH_WINDOW", &cfg.Credits.RefreshWindow); err != nil {
		return err
	}
	if err := envDuration("PROMPTSYNC_POLL_INTERVAL", &cfg.Credits.PollInterval); err != nil {
		return err
	}
	if url := os.Getenv("PROMPTSYNC_REMOTE_URL"); url != "" {
		cfg.Remote.BaseURL = url
	}
	if token := os.Getenv("PROMPTSYNC_TOKEN"); token != "" {
		cfg.Remote.Token = token
	}
	if userID := os.Getenv("PROMPTSYNC_USER_ID"); userID != "" {
		cfg.Remote.UserID = userID
	}
	if cachePath := os.Getenv("PROMPTSYNC_CACHE_PATH"); cachePath != "" {
		cfg.Cache.Path = cachePath
	}
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}
