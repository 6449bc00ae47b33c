package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/antcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/antcore/internal/server"
)

func newServeCommand() *cobra.Command {
	var (
		port     string
		appDir   string
		logLevel string
		dev      bool
		metrics  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// Flags override the environment
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("app-dir") {
				cfg.Runtime.AppDir = appDir
			}
			if flags.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if flags.Changed("dev") {
				cfg.Logging.Development = dev
			}
			if flags.Changed("metrics-addr") {
				cfg.Metrics.Address = metrics
				cfg.Metrics.Enabled = metrics != ""
			}

			logger, err := logging.New(logging.Config{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
				File:        cfg.Logging.File,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
				Compress:    cfg.Logging.Compress,
			})
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			srv, err := server.New(cfg, logger)
			if err != nil {
				logger.Error("Failed to create server", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting antcore",
				zap.String("version", Version),
				zap.String("port", cfg.Server.Port),
			)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8001", "Control server port")
	cmd.Flags().StringVar(&appDir, "app-dir", "", "Directory the installed app is persisted to")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Human-readable development logging")
	cmd.Flags().StringVar(&metrics, "metrics-addr", "", "Prometheus listen address; empty disables metrics")

	return cmd
}
