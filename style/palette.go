package style

import (
	"fmt"
	"regexp"
	"strings"
)

// PaletteEntry is a single ad hoc color.
type PaletteEntry struct {
	Value string
	Name  string
}

// Palette assigns stable names to ad hoc colors in the order they were first
// seen. Once assigned name never changes.
// NOTE: not to be used concurrently.
type Palette struct {
	names   map[string]string
	entries []PaletteEntry
}

func NewPalette() *Palette {
	return &Palette{names: make(map[string]string)}
}

// Name returns name of the color, registering color on first encounter.
func (p *Palette) Name(value string) string {
	if name, ok := p.names[value]; ok {
		return name
	}
	name := fmt.Sprintf("CustomColor%d", len(p.entries))
	p.names[value] = name
	p.entries = append(p.entries, PaletteEntry{Value: value, Name: name})
	return name
}

// Directive returns inline directive coloring content with the color.
func (p *Palette) Directive(value string) Directive {
	return Directive{Prefix: `{\color{` + p.Name(value) + `}`, Suffix: `}`}
}

func (p *Palette) Len() int {
	return len(p.entries)
}

// Entries returns colors in insertion order.
func (p *Palette) Entries() []PaletteEntry {
	out := make([]PaletteEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Definitions returns LaTeX preamble defining all colors, one per line in
// insertion order.
func (p *Palette) Definitions() string {
	var b strings.Builder
	for _, e := range p.entries {
		b.WriteString(e.Definition())
		b.WriteByte('\n')
	}
	return b.String()
}

var (
	hexColorRe   = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)
	shortColorRe = regexp.MustCompile(`^[0-9a-fA-F]{3}$`)
	rgbColorRe   = regexp.MustCompile(`^(?i:rgb)\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*\)$`)
	namedColorRe = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// Definition returns xcolor definition for the entry.
func (e PaletteEntry) Definition() string {
	switch v := e.Value; {
	case hexColorRe.MatchString(v):
		return fmt.Sprintf(`\definecolor{%s}{HTML}{%s}`, e.Name, v)
	case shortColorRe.MatchString(v):
		return fmt.Sprintf(`\definecolor{%s}{HTML}{%s}`, e.Name,
			string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]}))
	case rgbColorRe.MatchString(v):
		m := rgbColorRe.FindStringSubmatch(v)
		return fmt.Sprintf(`\definecolor{%s}{RGB}{%s,%s,%s}`, e.Name, m[1], m[2], m[3])
	case namedColorRe.MatchString(v):
		return fmt.Sprintf(`\colorlet{%s}{%s}`, e.Name, strings.ToLower(v))
	default:
		// current color, keeps document compilable
		return fmt.Sprintf(`\colorlet{%s}{.}`, e.Name)
	}
}
