package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cpcf/nsisgen/config"
	"github.com/cpcf/nsisgen/engine"
	"github.com/cpcf/nsisgen/state"
	"github.com/cpcf/nsisgen/write"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Script  string   `short:"s" help:"Where to write the script (default: the configured script path)" type:"path"`
	Stdout  bool     `help:"Print the script instead of writing it"`
	Section []string `help:"Render only these sections (general, resources, install, uninstall)"`
	Backup  bool     `help:"Keep the previous script as <script>.bak"`
	Force   bool     `help:"Rewrite the script even when its content is unchanged"`
	DryRun  bool     `name:"dry-run" help:"Report what would be written without touching the disk"`
}

func (b *BuildCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	return b.build(ctx, g, root.Config)
}

func (b *BuildCmd) build(ctx context.Context, g *Global, configPath string) error {
	logger := g.logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sections := make([]engine.Section, 0, len(b.Section))
	for _, name := range b.Section {
		s, err := engine.ParseSection(name)
		if err != nil {
			return err
		}
		sections = append(sections, s)
	}

	out, err := engine.New(cfg, engine.WithLogger(logger)).Render(ctx, sections...)
	if err != nil {
		return err
	}

	if b.Stdout {
		_, err := g.Stdout.Write(out.Content)
		return err
	}

	scriptPath := cfg.Script
	if b.Script != "" {
		scriptPath = b.Script
	}

	opts := write.DefaultOptions()
	opts.Backup = b.Backup
	opts.Force = b.Force

	if b.DryRun {
		dry := write.NewDryRunWriter()
		if _, err := dry.Write(scriptPath, out.Content, opts); err != nil {
			return err
		}
		for _, change := range dry.Changes() {
			fmt.Fprintf(g.Stdout, "%s %s (%d bytes)\n", change.Action, change.Path, change.Size)
		}
		return nil
	}

	manifests := state.NewManifestManager(filepath.Dir(scriptPath))
	manifest, err := manifests.LoadManifest()
	if err != nil {
		return err
	}
	if _, known := manifests.GetEntry(manifest, scriptPath); known {
		if edited, err := manifests.HasChanged(manifest, scriptPath); err == nil && edited {
			logger.Warn("script was changed since it was generated; overwriting", "path", scriptPath)
		}
	}

	result, err := write.NewBaseWriter(logger).Write(scriptPath, out.Content, opts)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(out.Sections))
	for _, s := range out.Sections {
		names = append(names, s.String())
	}
	entry, err := manifests.Record(manifest, scriptPath, out.Content, state.Generation{
		Sections:    names,
		Directories: out.Tree.Directories,
		Files:       out.Tree.Files,
		SourceDir:   cfg.SourceDir,
	})
	if err != nil {
		return err
	}
	if err := manifests.SaveManifest(manifest); err != nil {
		return err
	}

	status := "unchanged"
	if result.Written {
		status = "wrote"
	}
	logger.Info("script ready",
		"path", scriptPath,
		"status", status,
		"files", out.Tree.Files,
		"generation", entry.GenerationID)
	fmt.Fprintf(g.Stdout, "%s %s\n", status, scriptPath)
	return nil
}
