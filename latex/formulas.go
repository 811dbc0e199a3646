package latex

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ErrMarkerCollision is returned when text to be transformed already
// contains formula marker prefix.
var ErrMarkerCollision = errors.New("formula marker prefix found in source text")

// markerPrefix consists of letters only so that neither HTML parsing nor
// LaTeX escaping could alter it, markers are terminated to keep marker 1
// from matching inside marker 10.
const (
	markerPrefix     = "PEOFORMULA"
	markerTerminator = "Z"
)

// formula patterns in order of application, display math must go before
// inline math.
var formulaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\$[^$]+?\$\$`),
	regexp.MustCompile(`\$[^$]+?\$`),
	regexp.MustCompile(`(?s)\\\[.*?\\\]`),
}

// formulas keeps protected regions of a single transformation.
type formulas struct {
	originals []string
}

func marker(i int) string {
	return markerPrefix + strconv.Itoa(i) + markerTerminator
}

// protect replaces every formula with marker token.
func (f *formulas) protect(text string) (string, error) {
	if strings.Contains(text, markerPrefix) {
		return "", ErrMarkerCollision
	}
	for _, re := range formulaPatterns {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			f.originals = append(f.originals, m)
			return marker(len(f.originals) - 1)
		})
	}
	return text, nil
}

// restore puts formulas back. Formulas were captured from serialized HTML,
// so every entity the serializer could produce inside them is decoded.
func (f *formulas) restore(text string) string {
	if len(f.originals) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(f.originals))
	for i, orig := range f.originals {
		pairs = append(pairs, marker(i), html.UnescapeString(orig))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
