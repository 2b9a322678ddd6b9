// Command driftguard monitors external data sources for freshness, volume
// and schema drift, and notifies webhooks on state transitions.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/daemon"
	"github.com/driftguard/driftguard/internal/store"
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
	quiet      bool
)

// errChecksNotOK signals exit code 2: at least one checked source came back
// WARNING or ANOMALY. Automation keys on the code, not the message.
var errChecksNotOK = errors.New("one or more sources are not OK")

var rootCmd = &cobra.Command{
	Use:           "driftguard",
	Short:         "Data drift monitoring agent",
	Long:          "driftguard periodically checks data sources for freshness, volume and schema anomalies and dispatches signed webhook alerts on state transitions.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to driftguard.yaml (default: search conventional locations)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "warnings and errors only")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errChecksNotOK) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads, validates and env-resolves the configuration, and
// configures logging from it.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.FindFile()
	}
	if path == "" {
		return nil, fmt.Errorf("no config file found; run `driftguard init` or pass --config")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, src := range cfg.Sources {
		if err := daemon.ValidateSchedule(src.Schedule); err != nil {
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
	}

	resolved, err := config.ResolveEnv(cfg)
	if err != nil {
		return nil, err
	}

	setupLogging(resolved.Agent.LogLevel, resolved.Agent.LogFormat)
	return resolved, nil
}

// resolvedConfigPath returns the path loadConfig would read.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.FindFile()
}

func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	if quiet && lvl < slog.LevelWarn {
		lvl = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openStore opens the state database configured in cfg.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Storage.Path)
}
