package processors

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/cpcf/nsisgen/config"
)

// Encoding transcodes the UTF-8 script into the byte encoding makensis will
// read it as. Unicode NSIS detects UTF-16LE and UTF-8 by their BOM; ANSI
// builds read the system code page.
type Encoding struct {
	target config.Encoding
	enc    encoding.Encoding
}

func NewEncoding(target config.Encoding) (*Encoding, error) {
	var enc encoding.Encoding
	switch target {
	case config.EncodingUTF8, "":
		enc = encoding.Nop
	case config.EncodingUTF8BOM:
		enc = unicode.UTF8BOM
	case config.EncodingUTF16LE:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case config.EncodingWindows1252:
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported script encoding %q", target)
	}
	return &Encoding{target: target, enc: enc}, nil
}

func (e *Encoding) Name() string {
	return "encoding " + string(e.target)
}

// ProcessContent fails when the script contains characters the target
// encoding cannot represent.
func (e *Encoding) ProcessContent(name string, content []byte) ([]byte, error) {
	out, err := e.enc.NewEncoder().Bytes(content)
	if err != nil {
		return nil, fmt.Errorf("cannot encode script as %s: %w", e.target, err)
	}
	return out, nil
}
