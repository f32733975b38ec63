package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.slamon/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Auth    ConfigAuth    `toml:"auth"`
	Channel ConfigChannel `toml:"channel"`
}

// ConfigDefault holds general settings.
type ConfigDefault struct {
	BaseURL  string `toml:"base_url"`
	LogLevel string `toml:"log_level"`
}

// ConfigAuth holds the stored session credential.
type ConfigAuth struct {
	SessionCookie string `toml:"session_cookie"`
	CookieName    string `toml:"cookie_name"`
	VerifiedAt    string `toml:"verified_at"`
}

// ConfigChannel overrides channel tuning. Durations use Go syntax ("30s").
type ConfigChannel struct {
	HeartbeatInterval    string `toml:"heartbeat_interval"`
	OpenTimeout          string `toml:"open_timeout"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
	CacheTTL             string `toml:"cache_ttl"`
	StoragePath          string `toml:"storage_path"`
	WSPath               string `toml:"ws_path"`
	AuthCheckPath        string `toml:"auth_check_path"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the config directory, creating it if needed. SLAMON_HOME
// overrides the default ~/.slamon.
func configDir() (string, error) {
	dir := envString("SLAMON_HOME", "")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".slamon")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "base_url":
			cfg.Default.BaseURL = strings.TrimRight(value, "/")
		case "log_level":
			cfg.Default.LogLevel = value
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "auth":
		switch field {
		case "session_cookie":
			cfg.Auth.SessionCookie = value
		case "cookie_name":
			cfg.Auth.CookieName = value
		default:
			return fmt.Errorf("unknown field %q in section [auth]", field)
		}
	case "channel":
		switch field {
		case "heartbeat_interval", "open_timeout", "cache_ttl":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid duration for %s: %w", key, err)
			}
			switch field {
			case "heartbeat_interval":
				cfg.Channel.HeartbeatInterval = value
			case "open_timeout":
				cfg.Channel.OpenTimeout = value
			case "cache_ttl":
				cfg.Channel.CacheTTL = value
			}
		case "max_reconnect_attempts":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer for %s: %w", key, err)
			}
			cfg.Channel.MaxReconnectAttempts = n
		case "storage_path":
			cfg.Channel.StoragePath = value
		case "ws_path", "auth_check_path":
			if !strings.HasPrefix(value, "/") {
				return fmt.Errorf("invalid path for %s: must start with /", key)
			}
			if field == "ws_path" {
				cfg.Channel.WSPath = value
			} else {
				cfg.Channel.AuthCheckPath = value
			}
		default:
			return fmt.Errorf("unknown field %q in section [channel]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, auth, channel)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "slamon",
	Short: "SalesDash SLA monitoring CLI",
	Long:  "Command-line client for the SalesDash SLA monitoring channel.\nStore a session, check authorization, and watch live SLA updates.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config, then info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
