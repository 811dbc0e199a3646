// Package latex converts normalized HTML fragments into LaTeX markup.
package latex

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"peo/doctree"
	"peo/style"
)

// Transformer converts HTML fragments into LaTeX applying style directives
// derived from element classes.
type Transformer struct {
	log *zap.Logger
}

func NewTransformer(log *zap.Logger) *Transformer {
	return &Transformer{log: log}
}

// Transform converts single normalized HTML fragment. Ad hoc colors are
// registered in palette which is owned by the caller and is shared between
// fragments of the same document.
func (t *Transformer) Transform(fragment string, palette *style.Palette) (string, error) {
	var f formulas
	protected, err := f.protect(fragment)
	if err != nil {
		return "", err
	}

	doc, err := doctree.ParseString(protected)
	if err != nil {
		return "", fmt.Errorf("unable to parse fragment: %w", err)
	}

	t.applyInlineStyles(doc, palette)
	t.applyBlockStyles(doc, palette)

	out := strings.TrimSpace(Write(doc))
	out = f.restore(out)

	t.log.Debug("Fragment transformed",
		zap.Int("formulas", len(f.originals)),
		zap.Int("colors", palette.Len()))

	return cleanup(out), nil
}

// inlineDirective returns directive for the tag, ad hoc colors get named in
// the palette.
func inlineDirective(tag style.Tag, palette *style.Palette) (style.Directive, bool) {
	if d, ok := style.Lookup(tag, style.ScopeInline); ok {
		return d, true
	}
	if c, ok := tag.Color(); ok {
		return palette.Directive(c), true
	}
	return style.Directive{}, false
}

func wrap(n *doctree.Node, d style.Directive) {
	if d.Prefix != "" {
		n.Prepend(doctree.NewText(doctree.KindRawInline, d.Prefix))
	}
	if d.Suffix != "" {
		n.Append(doctree.NewText(doctree.KindRawInline, d.Suffix))
	}
}

// applyInlineStyles wraps content of every classified span.
func (t *Transformer) applyInlineStyles(doc *doctree.Node, palette *style.Palette) {
	spans := doc.Collect(func(n *doctree.Node) bool {
		return n.Kind == doctree.KindSpan && n.Attr.HasClasses()
	})
	for _, span := range spans {
		for _, tag := range style.FromClasses(span.Attr.Classes) {
			if d, ok := inlineDirective(tag, palette); ok {
				wrap(span, d)
			}
		}
	}
}

// ancestorRule is one step of classified container lookup: first rule
// matching an ancestor ends the walk with the classes it returns.
type ancestorRule struct {
	match   func(*doctree.Node) bool
	classes func(*doctree.Node) []string
}

func noClasses(*doctree.Node) []string { return nil }

var containerRules = []ancestorRule{
	{
		match:   func(n *doctree.Node) bool { return n.Kind == doctree.KindDiv },
		classes: func(n *doctree.Node) []string { return n.Attr.Classes },
	},
	{
		match:   func(n *doctree.Node) bool { return n.Kind == doctree.KindPara || n.Kind == doctree.KindPlain },
		classes: noClasses,
	},
	{
		match:   func(n *doctree.Node) bool { return n.Kind != doctree.KindBlockQuote },
		classes: noClasses,
	},
}

// containerClasses returns classes of the nearest classified container of
// the block.
func containerClasses(block *doctree.Node) []string {
	for a := range block.Ancestors() {
		for _, r := range containerRules {
			if r.match(a) {
				return r.classes(a)
			}
		}
	}
	return nil
}

type blockMatch struct {
	block *doctree.Node
	tags  style.Tags
}

// applyBlockStyles wraps content of paragraphs living in classified
// containers. Inline directives go inside block ones.
func (t *Transformer) applyBlockStyles(doc *doctree.Node, palette *style.Palette) {
	var matches []blockMatch
	for n := range doc.All() {
		if n.Kind != doctree.KindPara && n.Kind != doctree.KindPlain {
			continue
		}
		if classes := containerClasses(n); len(classes) > 0 {
			matches = append(matches, blockMatch{block: n, tags: style.FromClasses(classes)})
		}
	}

	for _, m := range slices.Backward(matches) {
		for _, tag := range m.tags {
			if d, ok := inlineDirective(tag, palette); ok {
				wrap(m.block, d)
			}
		}
		for _, tag := range m.tags {
			if d, ok := style.Lookup(tag, style.ScopeBlock); ok {
				wrap(m.block, d)
			}
		}
	}
}

var (
	mathBeforeEnvRe = regexp.MustCompile(`(?s)(?:\$\$?|\\\[)\s*(?P<begin>\\begin\{(?:align(?:ed)?|equation)\*?\})`)
	mathAfterEnvRe  = regexp.MustCompile(`(?s)(?P<end>\\end\{(?:align(?:ed)?|equation)\*?\})\s*(?:\$\$?|\\\])`)
	numberedEnvRe   = regexp.MustCompile(`\\(?P<be>begin|end)\{(?P<env>align|equation)\}`)
	soloImageRe     = regexp.MustCompile(`(?s)(?P<pre>\s\s+)\\includegraphics(?P<opts>\[[^\]]*\])?\{(?P<name>[^}]*)\}(?:\\\\)?(?P<post>\s\s+)`)
)

// cleanup fixes artifacts of the conversion: math mode around environments
// which are math mode by themselves, numbered equations and images standing
// alone between paragraphs.
func cleanup(s string) string {
	s = mathBeforeEnvRe.ReplaceAllString(s, "${begin}")
	s = mathAfterEnvRe.ReplaceAllString(s, "${end}")
	s = numberedEnvRe.ReplaceAllString(s, `\${be}{${env}*}`)

	// fragment boundaries count as blank lines
	s = "\n\n" + s + "\n\n"
	for {
		next := soloImageRe.ReplaceAllString(s, `${pre}\begin{center}\includegraphics${opts}{${name}}\end{center}${post}`)
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}
