package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/alert"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/daemon"
	"github.com/driftguard/driftguard/internal/detect"
	"github.com/driftguard/driftguard/internal/webhook"
)

var runHealthPort int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run as a daemon, checking sources on their schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		// Closed last: the loop drains its current source first.
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := daemon.NewMetrics()

		port := runHealthPort
		if port == 0 {
			port = cfg.Agent.HealthPort
		}
		if port != 0 {
			hs, err := daemon.StartHealth(port, st, metrics)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				hs.Shutdown(shutdownCtx)
			}()
		}

		// Change detection only: the running daemon never swaps config.
		if _, err := config.Watch(ctx, resolvedConfigPath()); err != nil {
			slog.Warn("run: config watch unavailable", "err", err)
		}

		pipeline := alert.NewPipeline(cfg.Alerting, st, webhook.New(false), cfg.Agent.ID, false)
		runner := daemon.NewRunner(cfg, st, detect.NewEngine(), pipeline, metrics)
		return runner.Run(ctx)
	},
}

func init() {
	runCmd.Flags().IntVar(&runHealthPort, "health-port", 0, "serve /healthz and /metrics on this port (overrides agent.health_port)")
	rootCmd.AddCommand(runCmd)
}
