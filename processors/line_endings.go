// Package processors provides the built-in post-processors for generated
// scripts.
package processors

import (
	"bytes"

	"github.com/cpcf/nsisgen/config"
)

// LineEndings rewrites line breaks. makensis accepts both styles, but scripts
// checked into Windows repositories are usually expected to use CRLF.
type LineEndings struct {
	Style config.LineEndings
}

func NewLineEndings(style config.LineEndings) *LineEndings {
	return &LineEndings{Style: style}
}

func (l *LineEndings) Name() string {
	return "line-endings"
}

// ProcessContent normalizes every line break to the configured style.
func (l *LineEndings) ProcessContent(name string, content []byte) ([]byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if l.Style == config.LineEndingsCRLF {
		return bytes.ReplaceAll(normalized, []byte("\n"), []byte("\r\n")), nil
	}
	return normalized, nil
}
