package tree

import (
	"fmt"

	"github.com/cpcf/nsisgen/render"
)

type Kind int

const (
	// SetOutPath selects the destination directory for the File directives
	// that follow it.
	SetOutPath Kind = iota
	// File packages one source file into the current destination directory.
	File
)

func (k Kind) String() string {
	switch k {
	case SetOutPath:
		return "SetOutPath"
	case File:
		return "File"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Directive is one packaging instruction of the install section.
//
// For SetOutPath, Path is relative to the install directory in installer
// syntax; the empty string means the install directory itself. For File,
// Path is the absolute source path in installer syntax.
type Directive struct {
	Kind Kind
	Path string
}

// String renders the directive as a script line.
func (d Directive) String() string {
	switch d.Kind {
	case SetOutPath:
		if d.Path == "" {
			return `SetOutPath "$INSTDIR"`
		}
		return `SetOutPath "$INSTDIR\` + render.Escape(d.Path) + `"`
	case File:
		return "File " + render.Quote(d.Path)
	default:
		return "; unknown directive " + d.Kind.String()
	}
}
