package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i-dream-of-ai/sparkmango/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start sparkmango as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir := cacheDir
			if dir == "" {
				dir = cfg.Cache.Dir
			}
			if dir == "" {
				dir = defaultCacheDir
			}
			p, err := newPipeline(ctx, cfg, dir, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			srv := mcp.New(p.usage, p.cache, p.enforcer, p, version,
				mcp.WithLogger(logger),
				mcp.WithPricing(cfg.Pricing),
			)
			logger.Info("mcp server started", zap.String("version", version))
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "file cache directory (default: cache.dir or ./cache)")
	return cmd
}
