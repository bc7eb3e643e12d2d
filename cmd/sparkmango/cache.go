package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/config"
)

func newCacheCmd(configPath *string) *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := openExistingCache(ctx, cfg.Cache, cacheDir)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Backend:  %s\nLocation: %s\nEntries:  %d\n", stats.Backend, stats.Location, stats.Entries)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached implementation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := openExistingCache(ctx, cfg.Cache, cacheDir)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d cache entries.\n", n)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "file cache directory (default: cache.dir)")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

// openExistingCache opens the configured cache without creating a missing
// file cache directory, so a mistyped --cache-dir is reported instead of
// showing an empty cache.
func openExistingCache(ctx context.Context, cfg config.CacheConfig, dir string) (cache.Store, error) {
	if cfg.Backend == "" || cfg.Backend == config.BackendFile {
		if dir == "" {
			dir = cfg.Dir
		}
		if dir != "" {
			info, err := os.Stat(dir)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("cache directory %s does not exist", dir)
			case err != nil:
				return nil, fmt.Errorf("cache directory: %w", err)
			case !info.IsDir():
				return nil, fmt.Errorf("cache directory %s is not a directory", dir)
			}
		}
	}
	return openCache(ctx, cfg, dir)
}
