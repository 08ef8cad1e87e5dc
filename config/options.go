package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidOptions is returned by Normalize when an option cannot be
// turned into a usable Config.
var ErrInvalidOptions = errors.New("invalid options")

// Placeholders substituted for cosmetic fields that were not supplied.
const (
	PlaceholderName        = "NO_APPNAME"
	PlaceholderCompany     = "NO_COMPANYNAME"
	PlaceholderDescription = "NO_DESCRIPTION"
	PlaceholderVersion     = "NO_VERSION"
	PlaceholderCopyright   = "NO_COPYRIGHT"
)

// DefaultInstallRoot is the NSIS constant the install directory is placed under.
const DefaultInstallRoot = "$PROGRAMFILES"

type Compression string

const (
	CompressionZlib  Compression = "zlib"
	CompressionBzip2 Compression = "bzip2"
	CompressionLZMA  Compression = "lzma"
)

func (c Compression) Valid() bool {
	switch c {
	case CompressionZlib, CompressionBzip2, CompressionLZMA:
		return true
	}
	return false
}

// WalkOrder selects how sibling entries of a directory are ordered when the
// source tree is enumerated.
type WalkOrder string

const (
	// WalkListing keeps whatever order the filesystem listing yields.
	WalkListing WalkOrder = "listing"
	// WalkLexical sorts siblings by name for reproducible output across platforms.
	WalkLexical WalkOrder = "lexical"
)

type LineEndings string

const (
	LineEndingsLF   LineEndings = "lf"
	LineEndingsCRLF LineEndings = "crlf"
)

type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF8BOM     Encoding = "utf-8-bom"
	EncodingUTF16LE     Encoding = "utf-16le"
	EncodingWindows1252 Encoding = "windows-1252"
)

// Flag is a boolean that accepts the loose spellings people put in YAML and
// environment variables: true/false, yes/no, on/off and integers.
type Flag bool

func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar for a boolean flag", node.Line)
	}
	v, err := ParseFlag(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*f = Flag(v)
	return nil
}

// ParseFlag coerces s to a strict boolean. The empty string is false.
func ParseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "off", "n":
		return false, nil
	case "true", "yes", "on", "y":
		return true, nil
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("cannot interpret %q as a boolean", s)
}

// Options is the raw package description as written by the user.
type Options struct {
	Name        string      `yaml:"name"`
	Company     string      `yaml:"company"`
	Description string      `yaml:"description"`
	Version     string      `yaml:"version"`
	Copyright   string      `yaml:"copyright"`
	Compression Compression `yaml:"compression"`
	Solid       Flag        `yaml:"solid"`
	SourceDir   string      `yaml:"source_dir"`
	Output      string      `yaml:"output"`

	InstallRoot string      `yaml:"install_root,omitempty"`
	WalkOrder   WalkOrder   `yaml:"walk_order,omitempty"`
	LineEndings LineEndings `yaml:"line_endings,omitempty"`
	Encoding    Encoding    `yaml:"encoding,omitempty"`
	Script      string      `yaml:"script,omitempty"`
}

// Config is the normalized form of Options. The engine takes it by value and
// never modifies it.
type Config struct {
	Name         string
	Company      string
	Description  string
	Version      string
	FixedVersion string
	Copyright    string
	Compression  Compression
	Solid        bool
	SourceDir    string
	Output       string
	InstallRoot  string
	WalkOrder    WalkOrder
	LineEndings  LineEndings
	Encoding     Encoding
	Script       string
}

// HasSource reports whether a packaging source directory was configured.
func (c Config) HasSource() bool {
	return c.SourceDir != ""
}

// Normalize fills defaults and validates the closed-set options. Missing
// cosmetic metadata never fails; each field gets its own placeholder.
func Normalize(opts Options) (Config, error) {
	cfg := Config{
		Name:        orDefault(opts.Name, PlaceholderName),
		Company:     orDefault(opts.Company, PlaceholderCompany),
		Description: orDefault(opts.Description, PlaceholderDescription),
		Version:     orDefault(opts.Version, PlaceholderVersion),
		Copyright:   orDefault(opts.Copyright, PlaceholderCopyright),
		Compression: Compression(strings.ToLower(string(opts.Compression))),
		Solid:       bool(opts.Solid),
		SourceDir:   opts.SourceDir,
		Output:      opts.Output,
		InstallRoot: orDefault(opts.InstallRoot, DefaultInstallRoot),
		WalkOrder:   WalkOrder(strings.ToLower(string(opts.WalkOrder))),
		LineEndings: LineEndings(strings.ToLower(string(opts.LineEndings))),
		Encoding:    Encoding(strings.ToLower(string(opts.Encoding))),
		Script:      opts.Script,
	}
	cfg.FixedVersion = FixVersion(cfg.Version)

	if cfg.Output == "" {
		return Config{}, fmt.Errorf("%w: output path is required", ErrInvalidOptions)
	}

	if cfg.Compression == "" {
		cfg.Compression = CompressionLZMA
	}
	if !cfg.Compression.Valid() {
		return Config{}, fmt.Errorf("%w: unknown compression %q (want zlib, bzip2 or lzma)", ErrInvalidOptions, opts.Compression)
	}

	switch cfg.WalkOrder {
	case "":
		cfg.WalkOrder = WalkListing
	case WalkListing, WalkLexical:
	default:
		return Config{}, fmt.Errorf("%w: unknown walk order %q", ErrInvalidOptions, opts.WalkOrder)
	}

	switch cfg.LineEndings {
	case "":
		cfg.LineEndings = LineEndingsLF
	case LineEndingsLF, LineEndingsCRLF:
	default:
		return Config{}, fmt.Errorf("%w: unknown line endings %q", ErrInvalidOptions, opts.LineEndings)
	}

	switch cfg.Encoding {
	case "", "utf8":
		cfg.Encoding = EncodingUTF8
	case EncodingUTF8, EncodingUTF8BOM, EncodingUTF16LE, EncodingWindows1252:
	default:
		return Config{}, fmt.Errorf("%w: unknown encoding %q", ErrInvalidOptions, opts.Encoding)
	}

	if strings.ContainsAny(cfg.InstallRoot, "\"\r\n") {
		return Config{}, fmt.Errorf("%w: install root %q cannot contain quotes or line breaks", ErrInvalidOptions, opts.InstallRoot)
	}

	if cfg.Script == "" {
		cfg.Script = strings.TrimSuffix(cfg.Output, filepath.Ext(cfg.Output)) + ".nsi"
	}

	return cfg, nil
}

var threePartVersion = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// FixVersion turns a three-part numeric version into the four-part form
// VIProductVersion requires. Anything else is returned unchanged.
func FixVersion(version string) string {
	if threePartVersion.MatchString(version) {
		return version + ".0"
	}
	return version
}

// SampleOptions is the configuration written by `nsisgen init`.
func SampleOptions() Options {
	return Options{
		Name:        "My Application",
		Company:     "My Company",
		Description: "My Application installer",
		Version:     "1.0.0",
		Copyright:   "Copyright (c) My Company",
		Compression: CompressionLZMA,
		SourceDir:   "./dist",
		Output:      "./build/setup.exe",
	}
}

// orDefault substitutes fallback for the empty string only; a value made of
// spaces was supplied and is kept.
func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
