package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	sessionCookieName string
	sessionNoVerify   bool
)

func init() {
	sessionCmd.Flags().StringVar(&sessionCookieName, "cookie-name", "", "Name of the session cookie (default from config, then \"session\")")
	sessionCmd.Flags().BoolVar(&sessionNoVerify, "no-verify", false, "Store the cookie without probing the auth endpoint")
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session <cookie>",
	Short: "Store and verify a session cookie",
	Long:  "Store a SalesDash session cookie locally after checking it against the authorization endpoint.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cookie := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if sessionCookieName != "" {
			cfg.Auth.CookieName = sessionCookieName
		}
		cfg.Auth.SessionCookie = cookie

		if !sessionNoVerify {
			logger := newLogger(os.Stderr, resolveLogLevel(cfg), logFormat)
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}

			cc, err := channelConfig(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			status, err := client.CheckSession(ctx, cc.AuthCheckPath)
			if err != nil {
				return fmt.Errorf("session check failed: %w", err)
			}
			if status < 200 || status >= 300 {
				return fmt.Errorf("session rejected: %d %s", status, http.StatusText(status))
			}
			cfg.Auth.VerifiedAt = time.Now().UTC().Format(time.RFC3339)
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if sessionNoVerify {
			fmt.Println("Session stored (not verified).")
		} else {
			fmt.Println("Session verified and stored.")
		}
		fmt.Printf("  Cookie: %s=%s\n", valueOrDefault(cfg.Auth.CookieName, "session"), maskSecret(cookie))
		return nil
	},
}
