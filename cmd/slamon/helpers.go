package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/salesdash/slamon"
)

// envString reads a string env var with a default.
func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// resolveLogLevel picks the flag, then the config file, then "info".
func resolveLogLevel(cfg *Config) string {
	if logLevel != "" {
		return logLevel
	}
	if cfg.Default.LogLevel != "" {
		return cfg.Default.LogLevel
	}
	return "info"
}

// newClient builds a client from the config. SLAMON_BASE_URL and
// SLAMON_SESSION take precedence over the stored values.
func newClient(cfg *Config, logger *slog.Logger, opts ...slamon.ClientOption) (*slamon.Client, error) {
	baseURL := envString("SLAMON_BASE_URL", cfg.Default.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("no base URL configured; run 'slamon init <base-url>' first")
	}

	opts = append([]slamon.ClientOption{slamon.WithLogger(logger)}, opts...)
	if session := envString("SLAMON_SESSION", cfg.Auth.SessionCookie); session != "" {
		opts = append(opts, slamon.WithSessionCookie(cfg.Auth.CookieName, session))
	}
	return slamon.NewClient(baseURL, opts...), nil
}

// channelConfig translates the [channel] section. Empty fields keep the
// library defaults.
func channelConfig(cfg *Config) (*slamon.ChannelConfig, error) {
	cc := &slamon.ChannelConfig{
		WSPath:               cfg.Channel.WSPath,
		AuthCheckPath:        cfg.Channel.AuthCheckPath,
		MaxReconnectAttempts: cfg.Channel.MaxReconnectAttempts,
	}
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"channel.heartbeat_interval", cfg.Channel.HeartbeatInterval, &cc.HeartbeatInterval},
		{"channel.open_timeout", cfg.Channel.OpenTimeout, &cc.OpenTimeout},
		{"channel.cache_ttl", cfg.Channel.CacheTTL, &cc.CacheTTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s %q", d.name, d.value)
		}
		*d.dst = v
	}
	return cc, nil
}

// storagePath returns the SQLite snapshot cache location.
func storagePath(cfg *Config) (string, error) {
	if cfg.Channel.StoragePath != "" {
		return cfg.Channel.StoragePath, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// maskSecret shows the first and last 4 characters of a credential.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
