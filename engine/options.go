package engine

import (
	"io/fs"
	"log/slog"
)

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSourceFS packages fsys instead of the configured source directory.
// root is the host path File directives should reference.
func WithSourceFS(fsys fs.FS, root string) Option {
	return func(e *Engine) {
		e.sourceFS = fsys
		e.sourceRoot = root
	}
}

// WithConcurrency bounds the parallel status checks of the tree walk.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}
