package style

import (
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// declaration is a single "property: value" pair from style attribute.
type declaration struct {
	property string // lower case
	value    string // as written, whitespace collapsed, !important dropped
}

// Classify returns tags implied by inline style declarations, for example
// `color: #FF0000; font-weight: bold`. Properties are matched case
// insensitively, color values keep their case. Declarations which do not map
// to any tag are returned as ignored, they are never an error.
func Classify(declarations string) (tags Tags, ignored []string) {
	for _, d := range parseDeclarations(declarations) {
		tag, ok := classifyDeclaration(d)
		if !ok {
			ignored = append(ignored, d.property+": "+d.value)
			continue
		}
		tags = tags.Add(tag)
	}
	return tags, ignored
}

func classifyDeclaration(d declaration) (Tag, bool) {
	value := strings.ToLower(d.value)
	switch d.property {
	case "color":
		if c := strings.TrimPrefix(d.value, "#"); c != "" {
			return ColorTag(c), true
		}
	case "font-family":
		if strings.Contains(value, "courier new") || strings.Contains(value, "monospace") {
			return TagMonospace, true
		}
	case "font-size":
		switch value {
		case "larger":
			return TagLarger, true
		case "smaller":
			return TagSmaller, true
		}
	case "font-style":
		if value == "italic" {
			return TagItalic, true
		}
	case "font-weight":
		if value == "bold" {
			return TagStrong, true
		}
	case "text-align":
		if value == "center" {
			return TagCenter, true
		}
	case "text-decoration":
		if strings.Contains(value, "underline") {
			return TagUnderline, true
		}
	}
	return "", false
}

// parseDeclarations tokenizes inline style attribute value.
func parseDeclarations(data string) []declaration {
	var result []declaration

	parser := css.NewParser(parse.NewInputString(data), true)
	for {
		gt, _, prop := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			// io.EOF or garbage, either way nothing more to read
			return result
		case css.DeclarationGrammar:
			if v := declarationValue(parser.Values()); v != "" {
				result = append(result, declaration{
					property: strings.ToLower(string(prop)),
					value:    v,
				})
			}
		}
	}
}

func declarationValue(tokens []css.Token) string {
	var parts []string
	for _, t := range tokens {
		switch t.TokenType {
		case css.WhitespaceToken:
			if len(parts) > 0 {
				parts = append(parts, " ")
			}
			continue
		case css.DelimToken:
			if string(t.Data) == "!" {
				// !important
				return strings.TrimSpace(strings.Join(parts, ""))
			}
		}
		parts = append(parts, string(t.Data))
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}
