package main

import (
	"fmt"
	"os"

	"github.com/bassista/labasica/internal/app"
	"github.com/bassista/labasica/internal/config"
	"github.com/bassista/labasica/internal/logger"
	"github.com/bassista/labasica/internal/store"
	"github.com/spf13/cobra"
)

var (
	configDir string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "labasica",
	Short: "Catalog, cart and sync service for La Básica",
	Long: `labasica keeps a local copy of the bakery catalog in step with the
canonical JSON documents, shares the shopping cart between processes and
serves the admin API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		if configDir != "" {
			paths = append(paths, configDir)
		}
		loaded, err := config.LoadConfig(paths...)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := logger.Configure(loaded.Misc.LogLevel, loaded.Misc.LogFormat); err != nil {
			logger.WithComponent("main").Warnf("invalid log level '%s', keeping '%s': %v",
				loaded.Misc.LogLevel, logger.Logger.GetLevel(), err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "", "directory containing config.yaml")
}

// openApp opens the configured backend and wires the application on top of it.
// The canonical source is optional.
func openApp(cfg *config.Config) (*app.App, error) {
	kvStore, err := app.OpenKV(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s storage: %w", cfg.Data.StoreBackend, err)
	}

	var source store.Source
	if cfg.Data.SourceURL != "" {
		source = store.NewHTTPSource(cfg.Data.SourceURL, cfg.Data.FetchTimeout)
	}

	a, err := app.New(cfg, kvStore, source)
	if err != nil {
		kvStore.Close()
		return nil, fmt.Errorf("cannot init app: %w", err)
	}
	return a, nil
}
