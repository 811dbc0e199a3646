// Package refs finds resources and cross references in generated LaTeX
// markup.
package refs

import (
	"iter"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// Prefixes of link targets referencing other pages of the site.
const (
	AppendixPrefix = "about="
	ProblemPrefix  = "problem="
	AttachmentExt  = ".txt"
)

// Set is a deduplicated set of paths which remembers order of discovery.
type Set struct {
	seen  map[string]struct{}
	items []string
}

// Add adds path to the set, returns false if path was already there.
func (s *Set) Add(path string) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[path]; ok {
		return false
	}
	s.seen[path] = struct{}{}
	s.items = append(s.items, path)
	return true
}

func (s *Set) Has(path string) bool {
	_, ok := s.seen[path]
	return ok
}

func (s *Set) Len() int {
	return len(s.items)
}

// At returns path number i in order of discovery. Set could grow while
// being iterated this way.
func (s *Set) At(i int) string {
	return s.items[i]
}

// All yields paths in order of discovery.
func (s *Set) All() iter.Seq[string] {
	return slices.Values(slices.Clone(s.items))
}

// Sorted returns paths in natural order.
func (s *Set) Sorted() []string {
	out := slices.Clone(s.items)
	sort.Sort(natural.StringSlice(out))
	return out
}

// Index accumulates references found in markup, each kind in its own set.
type Index struct {
	Images      Set
	Attachments Set
	Appendices  Set
	Problems    Set
}

var (
	graphicsRe = regexp.MustCompile(`\\includegraphics(?:\[[^\]]*\])*\{(?P<path>[^}]+)\}`)
	hrefRe     = regexp.MustCompile(`\\href\{(?P<target>[^}]+)\}\{(?P<label>[^}]+)\}`)
)

// Scan examines markup and records every image inclusion and every link
// to attachment, appendix or problem page. Anything else is ignored.
func (x *Index) Scan(markup string) {
	for _, m := range graphicsRe.FindAllStringSubmatch(markup, -1) {
		x.Images.Add(m[graphicsRe.SubexpIndex("path")])
	}
	for _, m := range hrefRe.FindAllStringSubmatch(markup, -1) {
		target := m[hrefRe.SubexpIndex("target")]
		switch {
		case strings.HasSuffix(target, AttachmentExt):
			x.Attachments.Add(target)
		case strings.HasPrefix(target, AppendixPrefix):
			x.Appendices.Add(target)
		case strings.HasPrefix(target, ProblemPrefix):
			x.Problems.Add(target)
		}
	}
}

// Scan returns index of references found in a single markup blob.
func Scan(markup string) *Index {
	var x Index
	x.Scan(markup)
	return &x
}
