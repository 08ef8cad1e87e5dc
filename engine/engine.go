// Package engine assembles NSIS installer scripts from a normalized
// configuration and a source directory tree.
package engine

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/cpcf/nsisgen/config"
	"github.com/cpcf/nsisgen/postprocess"
	"github.com/cpcf/nsisgen/processors"
	"github.com/cpcf/nsisgen/render"
	"github.com/cpcf/nsisgen/tree"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Engine struct {
	logger         *slog.Logger
	cfg            config.Config
	cache          *TemplateCache
	postprocessors *postprocess.Chain
	sourceFS       fs.FS
	sourceRoot     string
	concurrency    int
}

// Output is a rendered script together with what went into it.
type Output struct {
	Content  []byte
	Sections []Section
	Tree     tree.Stats
}

// New returns an engine for cfg. The line ending and encoding processors the
// configuration asks for are added to the post-processing chain first; an
// unsupported encoding surfaces as a configuration error from Render.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		logger:         slog.Default(),
		cfg:            cfg,
		cache:          NewTemplateCache(templateFS, render.FuncMap()),
		postprocessors: postprocess.NewChain(),
		concurrency:    8,
	}

	for _, opt := range opts {
		opt(e)
	}

	if cfg.LineEndings == config.LineEndingsCRLF {
		e.postprocessors.Add(processors.NewLineEndings(cfg.LineEndings))
	}
	if cfg.Encoding != "" && cfg.Encoding != config.EncodingUTF8 {
		enc, err := processors.NewEncoding(cfg.Encoding)
		if err != nil {
			e.postprocessors.AddFunc(func(string, []byte) ([]byte, error) {
				return nil, err
			})
		} else {
			e.postprocessors.Add(enc)
		}
	}

	return e
}

// AddPostProcessor adds a processor to the chain. Processors run in the
// order they are added, after the built-in ones.
func (e *Engine) AddPostProcessor(processor postprocess.Processor) {
	e.postprocessors.Add(processor)
}

func (e *Engine) AddPostProcessorFunc(fn func(name string, content []byte) ([]byte, error)) {
	e.postprocessors.AddFunc(fn)
}

// Generate renders the complete script.
func (e *Engine) Generate(ctx context.Context) ([]byte, error) {
	out, err := e.Render(ctx)
	if err != nil {
		return nil, err
	}
	return out.Content, nil
}

// Render renders the requested sections in script order. With no sections
// every section is rendered. Nothing is returned unless every step succeeds.
func (e *Engine) Render(ctx context.Context, sections ...Section) (*Output, error) {
	sections, err := canonical(sections)
	if err != nil {
		return nil, configError("sections", err)
	}

	wantInstall := slices.Contains(sections, SectionInstall)
	if wantInstall && e.sourceFS == nil && !e.cfg.HasSource() {
		return nil, configError("install", ErrNoSource)
	}

	data := scriptData{
		Name:         e.cfg.Name,
		Company:      e.cfg.Company,
		Description:  e.cfg.Description,
		FixedVersion: e.cfg.FixedVersion,
		Copyright:    e.cfg.Copyright,
		Compression:  string(e.cfg.Compression),
		Solid:        e.cfg.Solid,
		InstallRoot:  e.cfg.InstallRoot,
		Uninstaller:  Uninstaller,
	}
	if data.Compression == "" {
		data.Compression = string(config.CompressionLZMA)
	}
	if data.InstallRoot == "" {
		data.InstallRoot = config.DefaultInstallRoot
	}

	if slices.Contains(sections, SectionGeneral) {
		outFile, err := installerPath(e.cfg.Output)
		if err != nil {
			return nil, filesystemError("abs", e.cfg.Output, err)
		}
		data.OutFile = outFile
	}

	var stats tree.Stats
	if wantInstall {
		result, err := e.walk(ctx)
		if err != nil {
			return nil, err
		}
		data.Directives = result.Directives
		stats = result.Stats
	}

	framed := make([]string, 0, len(sections))
	for _, s := range sections {
		body, err := e.renderSection(s, data)
		if err != nil {
			return nil, err
		}
		framed = append(framed, frame(s, body))
	}

	content := []byte(assemble(framed))

	if e.postprocessors.HasProcessors() {
		content, err = e.postprocessors.Process(e.scriptName(), content)
		if err != nil {
			return nil, renderError("postprocess", err)
		}
	}

	e.logger.Info("generated installer script",
		"name", e.cfg.Name,
		"sections", len(sections),
		"files", stats.Files,
		"directories", stats.Directories,
		"bytes", len(content))

	return &Output{Content: content, Sections: sections, Tree: stats}, nil
}

func (e *Engine) walk(ctx context.Context) (tree.Result, error) {
	fsys, root := e.sourceFS, e.sourceRoot
	if fsys == nil {
		abs, err := filepath.Abs(e.cfg.SourceDir)
		if err != nil {
			return tree.Result{}, filesystemError("abs", e.cfg.SourceDir, err)
		}
		fsys, root = os.DirFS(abs), abs
	}

	order := tree.ListingOrder
	if e.cfg.WalkOrder == config.WalkLexical {
		order = tree.LexicalOrder
	}

	emitter := tree.New(
		tree.WithLogger(e.logger),
		tree.WithOrder(order),
		tree.WithConcurrency(e.concurrency),
	)

	result, err := emitter.Emit(ctx, fsys, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return tree.Result{}, err
		}
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return tree.Result{}, filesystemError(pe.Op, pe.Path, err)
		}
		return tree.Result{}, filesystemError("walk", root, err)
	}
	return result, nil
}

func (e *Engine) renderSection(s Section, data scriptData) (string, error) {
	tmpl, err := e.cache.Get(s.templatePath())
	if err != nil {
		return "", renderError(s.String(), err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", renderError(s.String(), err)
	}
	return buf.String(), nil
}

// installerPath resolves p to an absolute path in backslash form. A path
// already rooted in slash form is kept as is, so "/build/setup.exe" renders
// the same on every host.
func installerPath(p string) (string, error) {
	slashed := filepath.ToSlash(p)
	if !path.IsAbs(slashed) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		slashed = filepath.ToSlash(abs)
	}
	return render.WindowsPath(path.Clean(slashed)), nil
}

func (e *Engine) scriptName() string {
	if e.cfg.Script != "" {
		return filepath.Base(e.cfg.Script)
	}
	return "script.nsi"
}
