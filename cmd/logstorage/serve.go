package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	logstorage "github.com/syedhassaanahmed/log-storage-service"
	"github.com/syedhassaanahmed/log-storage-service/internal/config"
	"github.com/syedhassaanahmed/log-storage-service/internal/logging"
	"github.com/syedhassaanahmed/log-storage-service/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		backend    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if backend != "" {
				cfg.Storage.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, closeLog, err := logging.New(logging.Config{
				Level:      cfg.Log.Level,
				Format:     cfg.Log.Format,
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			if err != nil {
				return err
			}
			defer closeLog() //nolint:errcheck // best effort on exit

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			ctx := cmd.Context()
			st, closeStore, err := cfg.OpenStore(ctx, logger, reg)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					logger.Warn("close store", "error", err)
				}
			}()

			svc := logstorage.New(st,
				logstorage.WithBaseURL(cfg.Server.BaseURL),
				logstorage.WithMaxUploadSize(cfg.Server.MaxUploadSize),
				logstorage.WithLogger(logger),
			)
			srv := server.New(svc,
				server.WithAddr(cfg.Server.Addr),
				server.WithBasicAuth(cfg.Server.Username, cfg.Server.Password),
				server.WithAuthExclude(cfg.Server.AuthExclude...),
				server.WithCacheMaxAge(cfg.Server.CacheMaxAge),
				server.WithMaxUploadSize(cfg.Server.MaxUploadSize),
				server.WithStatus(cfg.Status()),
				server.WithRegistry(reg),
				server.WithLogger(logger),
			)
			logger.Info("starting", "version", version, "backend", cfg.Storage.Backend, "cache", cfg.Cache.Type)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&backend, "backend", "", "storage backend (overrides config)")
	return cmd
}
