package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

// configGetters maps every settable key to its current value.
var configGetters = map[string]func(*Config) string{
	"default.base_url":               func(c *Config) string { return c.Default.BaseURL },
	"default.log_level":              func(c *Config) string { return c.Default.LogLevel },
	"auth.session_cookie":            func(c *Config) string { return maskSecret(c.Auth.SessionCookie) },
	"auth.cookie_name":               func(c *Config) string { return c.Auth.CookieName },
	"auth.verified_at":               func(c *Config) string { return c.Auth.VerifiedAt },
	"channel.heartbeat_interval":     func(c *Config) string { return c.Channel.HeartbeatInterval },
	"channel.open_timeout":           func(c *Config) string { return c.Channel.OpenTimeout },
	"channel.cache_ttl":              func(c *Config) string { return c.Channel.CacheTTL },
	"channel.storage_path":           func(c *Config) string { return c.Channel.StoragePath },
	"channel.ws_path":                func(c *Config) string { return c.Channel.WSPath },
	"channel.auth_check_path":        func(c *Config) string { return c.Channel.AuthCheckPath },
	"channel.max_reconnect_attempts": func(c *Config) string { return strconv.Itoa(c.Channel.MaxReconnectAttempts) },
}

func configValue(cfg *Config, key string) (string, error) {
	get, ok := configGetters[key]
	if !ok {
		keys := make([]string, 0, len(configGetters))
		for k := range configGetters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("unknown key %q (known: %v)", key, keys)
	}
	return get(cfg), nil
}

// redactedConfig renders cfg as TOML with the session cookie masked.
func redactedConfig(cfg *Config) ([]byte, error) {
	shown := *cfg
	if shown.Auth.SessionCookie != "" {
		shown.Auth.SessionCookie = maskSecret(shown.Auth.SessionCookie)
	}
	return toml.Marshal(&shown)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage slamon configuration",
	Long:  "Inspect or change the channel, auth and logging settings stored in ~/.slamon/config.toml (or $SLAMON_HOME/config.toml).",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration with the session cookie masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No configuration file found. Run 'slamon init <base-url>' to create one.")
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out, err := redactedConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s", path, out)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Long:  "Print one configuration value by dot-notation key.\nExample: slamon config get channel.heartbeat_interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		v, err := configValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value by dot-notation key. Durations use Go syntax (30s, 5m).\nExample: slamon config set channel.open_timeout 5s",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		shown, err := configValue(cfg, key)
		if err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", key, shown)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
