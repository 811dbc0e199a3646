// Package style maps presentational HTML attributes to semantic style tags
// and keeps the LaTeX directives implementing those tags.
package style

import (
	"slices"
	"strings"
)

// Tag is a semantic style identifier. Tag values double as HTML class names:
// the site marks up most of its styling with these classes directly, the
// rest is derived from inline style attributes by Classify.
type Tag string

const (
	TagStrong     Tag = "strong"
	TagItalic     Tag = "italic"
	TagUnderline  Tag = "underline"
	TagMonospace  Tag = "monospace"
	TagSmallest   Tag = "smallest"
	TagSmaller    Tag = "smaller"
	TagNormalSize Tag = "normalsize"
	TagLarger     Tag = "larger"
	TagLargest    Tag = "largest"
	TagBlue       Tag = "blue"
	TagGreen      Tag = "green"
	TagOrange     Tag = "orange"
	TagRed        Tag = "red"
	TagCenter     Tag = "center"
	TagMarginLeft Tag = "margin_left"
)

// colorPrefix marks ad hoc color tags, the rest of the tag is the raw color
// value as found in the style attribute.
const colorPrefix = "__COLOR__"

// ColorTag returns ad hoc color tag for the color value.
func ColorTag(value string) Tag {
	return Tag(colorPrefix + value)
}

// Color returns color value of the ad hoc color tag.
func (t Tag) Color() (string, bool) {
	if v, ok := strings.CutPrefix(string(t), colorPrefix); ok && v != "" {
		return v, true
	}
	return "", false
}

func (t Tag) String() string {
	return string(t)
}

// Tags is a set of tags preserving the order tags were added in.
type Tags []Tag

// Has reports whether tag is in the set.
func (ts Tags) Has(t Tag) bool {
	return slices.Contains(ts, t)
}

// Add returns the set with tag added unless already present.
func (ts Tags) Add(t Tag) Tags {
	if t == "" || ts.Has(t) {
		return ts
	}
	return append(ts, t)
}

// Union returns tags from both sets, receiver tags first.
func (ts Tags) Union(other Tags) Tags {
	out := slices.Clone(ts)
	for _, t := range other {
		out = out.Add(t)
	}
	return out
}

// Strings converts set to class list.
func (ts Tags) Strings() []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}

// FromClasses converts HTML class list to tag set. Any class is accepted,
// classes without directives are simply ignored later.
func FromClasses(classes []string) Tags {
	var ts Tags
	for _, c := range classes {
		ts = ts.Add(Tag(c))
	}
	return ts
}
