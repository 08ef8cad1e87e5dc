// Package config loads and normalizes the installer package description.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func readConfigFile(path string) (string, []byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("configuration file does not exist: %s", absPath)
		}
		return "", nil, fmt.Errorf("failed to read configuration file %q: %w", absPath, err)
	}
	return absPath, data, nil
}

// Parse decodes Options from YAML without normalizing them.
func Parse(data []byte) (Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	return opts, nil
}

// Load reads Options from a YAML file, applies NSISGEN_* environment
// overrides and normalizes the result. Validation runs after the overrides,
// so the environment may supply a field the file leaves out. Relative source,
// output and script paths are resolved against the configuration file's
// directory.
func Load(path string) (Config, error) {
	absPath, data, err := readConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	opts, err := Parse(data)
	if err != nil {
		return Config{}, err
	}

	if err := ApplyEnv(&opts); err != nil {
		return Config{}, err
	}

	base := filepath.Dir(absPath)
	opts.SourceDir = resolveAgainst(base, opts.SourceDir)
	opts.Output = resolveAgainst(base, opts.Output)
	opts.Script = resolveAgainst(base, opts.Script)

	return Normalize(opts)
}

// Save writes opts as YAML. An existing file is only replaced when force is set.
func Save(path string, opts Options, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func resolveAgainst(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// LoadEnv loads variables from .env files into the process environment.
// Files that do not exist are skipped; variables already set are kept.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", f, err)
		}
	}
	return nil
}

// EnvPrefix prefixes every environment override, e.g. NSISGEN_VERSION.
const EnvPrefix = "NSISGEN_"

// ApplyEnv overrides fields of opts with NSISGEN_* environment variables.
func ApplyEnv(opts *Options) error {
	strs := map[string]*string{
		"NAME":         &opts.Name,
		"COMPANY":      &opts.Company,
		"DESCRIPTION":  &opts.Description,
		"VERSION":      &opts.Version,
		"COPYRIGHT":    &opts.Copyright,
		"SOURCE_DIR":   &opts.SourceDir,
		"OUTPUT":       &opts.Output,
		"INSTALL_ROOT": &opts.InstallRoot,
		"SCRIPT":       &opts.Script,
	}
	for key, field := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*field = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "COMPRESSION"); ok {
		opts.Compression = Compression(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "WALK_ORDER"); ok {
		opts.WalkOrder = WalkOrder(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LINE_ENDINGS"); ok {
		opts.LineEndings = LineEndings(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ENCODING"); ok {
		opts.Encoding = Encoding(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SOLID"); ok {
		solid, err := ParseFlag(v)
		if err != nil {
			return fmt.Errorf("%sSOLID: %w", EnvPrefix, err)
		}
		opts.Solid = Flag(solid)
	}
	return nil
}
