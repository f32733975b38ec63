package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/salesdash/slamon"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, authorization and cached snapshot",
	Long:  "Display the current configuration, probe the authorization endpoint, and report the age of the cached SLA snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, "(not set)"))
		fmt.Printf("  Log level:   %s\n", valueOrDefault(cfg.Default.LogLevel, "info"))

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.SessionCookie != "" {
			fmt.Printf("  Session:     %s=%s\n", valueOrDefault(cfg.Auth.CookieName, "session"), maskSecret(cfg.Auth.SessionCookie))
			fmt.Printf("  Verified at: %s\n", valueOrDefault(cfg.Auth.VerifiedAt, "(never)"))
		} else {
			fmt.Println("  Session:     (not set)")
		}

		logger := newLogger(os.Stderr, resolveLogLevel(cfg), logFormat)
		client, err := newClient(cfg, logger)
		if err != nil {
			fmt.Printf("\n%v\n", err)
			return nil
		}

		cc, err := channelConfig(cfg)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("Live status:")
		fmt.Printf("  Channel URL: %s\n", client.WSURL(valueOrDefault(cc.WSPath, slamon.DefaultWSPath)))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		code, err := client.CheckSession(ctx, cc.AuthCheckPath)
		switch {
		case err != nil:
			fmt.Printf("  Authorized:  unknown (%v)\n", err)
		case code >= 200 && code < 300:
			fmt.Println("  Authorized:  yes")
		default:
			fmt.Printf("  Authorized:  no (%d %s)\n", code, http.StatusText(code))
		}

		path, err := storagePath(cfg)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Println("  Cache:       (empty)")
			return nil
		}
		store, err := slamon.OpenSQLiteStorage(path)
		if err != nil {
			fmt.Printf("  Cache:       unreadable (%v)\n", err)
			return nil
		}
		defer store.Close()

		cc.Storage = store
		ch := client.NewChannel(cc)
		defer ch.Disconnect()

		snap := ch.CachedData()
		if snap == nil {
			fmt.Println("  Cache:       (no fresh snapshot)")
			return nil
		}
		age := time.Since(snap.CachedAt).Truncate(time.Second)
		fmt.Printf("  Cache:       fresh (%s old)\n", age)
		printHealth(snap.Data)
		return nil
	},
}

func printHealth(data *slamon.SLAData) {
	h := data.SystemHealth
	fmt.Printf("  Status:      %s\n", valueOrDefault(h.Status, "unknown"))
	fmt.Printf("  Uptime:      %.3f%%\n", h.UptimePercent)
	fmt.Printf("  Response:    %.0f ms\n", h.ResponseTimeMs)
	fmt.Printf("  Error rate:  %.2f%%\n", h.ErrorRate)
	fmt.Printf("  Incidents:   %d\n", h.ActiveIncidents)
	fmt.Printf("  Alerts:      %d\n", len(data.Alerts))
}
