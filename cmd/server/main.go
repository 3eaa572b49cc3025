package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire-server/internal/app"
	"github.com/taskwire/taskwire-server/internal/config"
	"github.com/taskwire/taskwire-server/internal/log"
)

func main() {
	var (
		addr       string
		configPath string
		logLevel   string
		dbPath     string
	)

	rootCmd := &cobra.Command{
		Use:   "taskwire-server",
		Short: "Collaborative task tracker with real-time project sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{
				Addr:         addr,
				LogLevel:     logLevel,
				DatabasePath: dbPath,
			})
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting taskwire server")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "path to sqlite database file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
