package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/salesdash/slamon"
	"github.com/spf13/cobra"
)

var (
	watchMetricsAddr string
	watchHookAddr    string
	watchHookSecret  string
)

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9108)")
	watchCmd.Flags().StringVar(&watchHookAddr, "hook-addr", "", "Serve the session hook on this address (e.g. :9109)")
	watchCmd.Flags().StringVar(&watchHookSecret, "hook-secret", "", "HMAC secret for the session hook (or SLAMON_HOOK_SECRET)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and print live SLA updates",
	Long:  "Open the SLA monitoring channel and print connection changes, snapshots and alerts until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := newLogger(os.Stderr, resolveLogLevel(cfg), logFormat)

		var servers []*http.Server
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, srv := range servers {
				srv.Shutdown(ctx)
			}
		}()

		var clientOpts []slamon.ClientOption
		if watchMetricsAddr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			clientOpts = append(clientOpts, slamon.WithMetrics(slamon.NewMetrics(reg)))

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			servers = append(servers, serve(logger, "metrics", watchMetricsAddr, mux))
		}

		client, err := newClient(cfg, logger, clientOpts...)
		if err != nil {
			return err
		}

		path, err := storagePath(cfg)
		if err != nil {
			return err
		}
		store, err := slamon.OpenSQLiteStorage(path)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer store.Close()

		platform := slamon.NewOSPlatform(store)
		defer platform.Close()

		cc, err := channelConfig(cfg)
		if err != nil {
			return err
		}
		cc.Storage = platform
		ch := client.NewChannel(cc)

		done := make(chan struct{})
		var stopOnce sync.Once
		stop := func() { stopOnce.Do(func() { close(done) }) }

		unbind := ch.Bind(platform)
		defer unbind()
		platform.OnUnload(stop)

		ch.OnConnectionStatus(func(connected bool) {
			if connected {
				fmt.Printf("[%s] connected\n", time.Now().Format(time.TimeOnly))
			} else {
				fmt.Printf("[%s] disconnected\n", time.Now().Format(time.TimeOnly))
			}
		})
		ch.OnUpdate(func(data *slamon.SLAData) {
			fmt.Printf("[%s] snapshot\n", time.Now().Format(time.TimeOnly))
			printHealth(data)
		})
		ch.OnMessage(func(msg slamon.InboundMessage) {
			if m, ok := msg.(*slamon.NewAlert); ok && m.Alert != nil {
				fmt.Printf("[%s] alert %s (%s): %s\n", time.Now().Format(time.TimeOnly), m.Alert.ID, m.Alert.Severity, m.Alert.Title)
			}
		})

		if watchHookAddr != "" {
			secret := envString("SLAMON_HOOK_SECRET", watchHookSecret)
			disconnect := slamon.DisconnectOnSessionEnd(ch)
			hook, err := slamon.NewSessionHook(secret, func(event *slamon.SessionEvent) error {
				err := disconnect(event)
				fmt.Printf("[%s] session %s, stopping\n", time.Now().Format(time.TimeOnly), event.Event)
				stop()
				return err
			})
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/hooks/session", hook.HTTPHandler())
			servers = append(servers, serve(logger, "session hook", watchHookAddr, mux))
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		err = ch.Connect(ctx)
		cancel()
		switch {
		case errors.Is(err, slamon.ErrAuthenticationFailed):
			ch.Disconnect()
			return fmt.Errorf("not authorized; run 'slamon session <cookie>' first")
		case err != nil:
			logger.Warn("initial connect failed, retrying in background", "err", err)
		}

		<-done
		ch.Disconnect()
		return nil
	},
}

func serve(logger *slog.Logger, name, addr string, h http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("listening", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "server", name, "err", err)
		}
	}()
	return srv
}
