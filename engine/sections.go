package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cpcf/nsisgen/render"
	"github.com/cpcf/nsisgen/tree"
)

// Section is one of the fixed blocks of a generated script.
type Section int

const (
	SectionGeneral Section = iota
	SectionResources
	SectionInstall
	SectionUninstall
)

// AllSections lists every section in script order.
func AllSections() []Section {
	return []Section{SectionGeneral, SectionResources, SectionInstall, SectionUninstall}
}

func (s Section) String() string {
	switch s {
	case SectionGeneral:
		return "general"
	case SectionResources:
		return "resources"
	case SectionInstall:
		return "install"
	case SectionUninstall:
		return "uninstall"
	default:
		return fmt.Sprintf("section(%d)", int(s))
	}
}

func (s Section) title() string {
	switch s {
	case SectionGeneral:
		return "General"
	case SectionResources:
		return "Resources"
	case SectionInstall:
		return "Install"
	case SectionUninstall:
		return "Uninstall"
	default:
		return s.String()
	}
}

func (s Section) templatePath() string {
	return "templates/" + s.String() + ".nsi.tmpl"
}

func ParseSection(name string) (Section, error) {
	for _, s := range AllSections() {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown section %q (want general, resources, install or uninstall)", name)
}

// canonical sorts sections into script order and drops duplicates. An empty
// request means every section.
func canonical(sections []Section) ([]Section, error) {
	if len(sections) == 0 {
		return AllSections(), nil
	}
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		if s < SectionGeneral || s > SectionUninstall {
			return nil, fmt.Errorf("unknown section %d", int(s))
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Banner opens every generated script.
const Banner = "# Generated by nsisgen. Do not edit; regenerate from the package configuration."

// Uninstaller is the file name the install section writes the uninstaller to.
const Uninstaller = "uninstall.exe"

// scriptData is what the section templates see.
type scriptData struct {
	Name         string
	Company      string
	Description  string
	FixedVersion string
	Copyright    string
	Compression  string
	Solid        bool
	InstallRoot  string
	OutFile      string
	Uninstaller  string
	Directives   []tree.Directive
}

// frame wraps a section body in dividers and its title comment.
func frame(s Section, body string) string {
	var b strings.Builder
	b.WriteString(render.Divider)
	b.WriteString("\n# ")
	b.WriteString(s.title())
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	b.WriteString(render.Divider)
	b.WriteString("\n")
	return b.String()
}

// assemble joins framed sections below the banner, one blank line apart.
func assemble(framed []string) string {
	var b strings.Builder
	b.WriteString(Banner)
	b.WriteString("\n")
	for _, section := range framed {
		b.WriteString("\n")
		b.WriteString(section)
	}
	return b.String()
}
