package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cpcf/nsisgen/config"
	"github.com/cpcf/nsisgen/state"
	"github.com/cpcf/nsisgen/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Debounce time.Duration `help:"Quiet period before a rebuild" default:"300ms"`
	Backup   bool          `help:"Keep the previous script as <script>.bak"`
}

func (w *WatchCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	logger := g.logger()
	build := &BuildCmd{Backup: w.Backup}

	if err := build.build(ctx, g, root.Config); err != nil {
		logger.Error("initial build failed", "error", err)
	}

	// The source directory comes from the configuration as loaded now; a
	// changed source_dir takes effect on the next start.
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	files := []string{root.Config}
	for _, f := range root.EnvFile {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}
	watcher, err := watch.New(watch.Config{
		SourceDir: cfg.SourceDir,
		Files:     files,
		IgnorePaths: []string{
			cfg.Script,
			state.NewManifestManager(filepath.Dir(cfg.Script)).Path(),
		},
		Debounce: w.Debounce,
		Logger:   logger,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Debug("rebuilding", "changed", changed)
			return build.build(ctx, g, root.Config)
		},
	})
	if err != nil {
		return err
	}

	logger.Info("watching for changes", "source", cfg.SourceDir, "config", root.Config)
	return watcher.Run(ctx)
}
