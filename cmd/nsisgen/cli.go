package main

import (
	"io"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/cpcf/nsisgen/config"
)

// Global carries the writers and logger shared by every command.
type Global struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func (g *Global) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

type CLI struct {
	Config  string           `short:"c" help:"Package configuration file" default:"nsisgen.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	EnvFile []string         `name:"env-file" help:"Environment files applied before NSISGEN_* overrides (missing files are ignored)" default:".env" type:"path"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build BuildCmd `cmd:"" default:"withargs" help:"Generate the installer script"`
	Init  InitCmd  `cmd:"" help:"Write a sample configuration file"`
	Watch WatchCmd `cmd:"" help:"Regenerate the script whenever the source tree or configuration changes"`
}

// AfterApply sets up logging and loads the environment files once flags
// are parsed.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(g.Stderr, &slog.HandlerOptions{Level: level}))

	return config.LoadEnv(c.EnvFile...)
}
