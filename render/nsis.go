// Package render holds the text helpers shared by the section templates and
// the directive renderer: NSIS string escaping and installer-native paths.
package render

import (
	"strings"
	"text/template"
)

// Divider frames every section of a generated script.
const Divider = "################################################################################"

var escaper = strings.NewReplacer(
	"$", "$$",
	`"`, `$\"`,
	"\n", `$\n`,
	"\r", `$\r`,
	"\t", `$\t`,
)

// Escape makes s safe to embed inside a double-quoted NSIS string literal.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Quote escapes s and wraps it in double quotes.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

// WindowsPath converts a slash-separated path to the backslash form the
// installer expects, independent of the host running the generator.
func WindowsPath(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}

// FuncMap returns the functions available to section templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"escape":  Escape,
		"quote":   Quote,
		"winpath": WindowsPath,
	}
}
