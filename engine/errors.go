package engine

import (
	"errors"
	"fmt"
)

// Kind classifies why generation failed.
type Kind int

const (
	// KindConfig means the configuration cannot produce the requested
	// sections, e.g. an install section without a source directory.
	KindConfig Kind = iota + 1
	// KindFilesystem means listing or checking the source tree failed, or an
	// output path could not be resolved.
	KindFilesystem
	// KindRender means a section template or a post-processor failed.
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindFilesystem:
		return "filesystem error"
	case KindRender:
		return "render error"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Sentinels for errors.Is. A *GenerationError matches the one of its kind.
var (
	ErrConfig     = errors.New("configuration error")
	ErrFilesystem = errors.New("filesystem error")
	ErrRender     = errors.New("render error")
)

// ErrNoSource is wrapped by the configuration error returned when the
// install section is requested without a source directory.
var ErrNoSource = errors.New("no source directory configured")

type GenerationError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrFilesystem:
		return e.Kind == KindFilesystem
	case ErrRender:
		return e.Kind == KindRender
	}
	return false
}

func configError(op string, err error) error {
	return &GenerationError{Kind: KindConfig, Op: op, Err: err}
}

func renderError(op string, err error) error {
	return &GenerationError{Kind: KindRender, Op: op, Err: err}
}

func filesystemError(op, path string, err error) error {
	return &GenerationError{Kind: KindFilesystem, Op: op, Path: path, Err: err}
}
