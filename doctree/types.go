// Package doctree defines structured document tree produced from HTML
// fragments. Tree is intentionally close to what a typesetting writer needs:
// blocks contain blocks or inlines, inlines contain inlines. Every node keeps
// a back reference to its parent, parent never owns anything through it.
package doctree

import (
	"iter"
	"slices"
	"strings"
)

// Kind distinguishes different node types.
type Kind int

const (
	KindDocument Kind = iota

	// blocks
	KindPara
	KindPlain
	KindDiv
	KindBlockQuote
	KindBulletList
	KindOrderedList
	KindListItem
	KindDefinitionList
	KindTerm
	KindDefinition
	KindHeader
	KindCodeBlock
	KindHorizontalRule
	KindTable
	KindRow
	KindCell
	KindRawBlock

	// inlines
	KindStr
	KindSpace
	KindLineBreak
	KindEmph
	KindStrong
	KindUnderline
	KindStrikeout
	KindSuperscript
	KindSubscript
	KindCode
	KindLink
	KindImage
	KindSpan
	KindRawInline
)

var kindNames = [...]string{
	KindDocument:       "Document",
	KindPara:           "Para",
	KindPlain:          "Plain",
	KindDiv:            "Div",
	KindBlockQuote:     "BlockQuote",
	KindBulletList:     "BulletList",
	KindOrderedList:    "OrderedList",
	KindListItem:       "ListItem",
	KindDefinitionList: "DefinitionList",
	KindTerm:           "Term",
	KindDefinition:     "Definition",
	KindHeader:         "Header",
	KindCodeBlock:      "CodeBlock",
	KindHorizontalRule: "HorizontalRule",
	KindTable:          "Table",
	KindRow:            "Row",
	KindCell:           "Cell",
	KindRawBlock:       "RawBlock",
	KindStr:            "Str",
	KindSpace:          "Space",
	KindLineBreak:      "LineBreak",
	KindEmph:           "Emph",
	KindStrong:         "Strong",
	KindUnderline:      "Underline",
	KindStrikeout:      "Strikeout",
	KindSuperscript:    "Superscript",
	KindSubscript:      "Subscript",
	KindCode:           "Code",
	KindLink:           "Link",
	KindImage:          "Image",
	KindSpan:           "Span",
	KindRawInline:      "RawInline",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// IsInline reports whether node of this kind belongs to inline content.
func (k Kind) IsInline() bool {
	return k >= KindStr
}

// Attr carries HTML attributes which survive into the tree.
type Attr struct {
	ID      string
	Classes []string
	Width   string
	Height  string
}

// HasClasses is true when node has at least one class.
func (a Attr) HasClasses() bool {
	return len(a.Classes) > 0
}

// Node is a single element of the document tree.
type Node struct {
	Kind   Kind
	Text   string // Str, Code, CodeBlock, RawInline, RawBlock
	Target string // Link href, Image src
	Level  int    // Header level, OrderedList start
	Header bool   // Cell is a header cell
	Attr   Attr

	Parent   *Node
	Children []*Node
}

// New creates detached node.
func New(kind Kind) *Node {
	return &Node{Kind: kind}
}

// NewText creates detached node carrying text.
func NewText(kind Kind, text string) *Node {
	return &Node{Kind: kind, Text: text}
}

// Append adds children at the end.
func (n *Node) Append(children ...*Node) {
	for _, c := range children {
		c.Parent = n
	}
	n.Children = append(n.Children, children...)
}

// Prepend adds children at the beginning.
func (n *Node) Prepend(children ...*Node) {
	for _, c := range children {
		c.Parent = n
	}
	n.Children = slices.Insert(n.Children, 0, children...)
}

// Remove detaches child from the node.
func (n *Node) Remove(child *Node) {
	if i := slices.Index(n.Children, child); i >= 0 {
		n.Children = slices.Delete(n.Children, i, i+1)
		child.Parent = nil
	}
}

// Ancestors yields parent chain, closest first.
func (n *Node) Ancestors() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for p := n.Parent; p != nil; p = p.Parent {
			if !yield(p) {
				return
			}
		}
	}
}

// All yields node and all its descendants in document order.
func (n *Node) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walk(yield)
	}
}

func (n *Node) walk(yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.walk(yield) {
			return false
		}
	}
	return true
}

// Collect returns nodes matching predicate in document order.
func (n *Node) Collect(match func(*Node) bool) []*Node {
	var out []*Node
	for c := range n.All() {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

// PlainText returns text content of the node ignoring all markup.
func (n *Node) PlainText() string {
	var b strings.Builder
	for c := range n.All() {
		switch c.Kind {
		case KindStr, KindCode, KindCodeBlock:
			b.WriteString(c.Text)
		case KindSpace:
			b.WriteByte(' ')
		case KindLineBreak:
			b.WriteByte('\n')
		}
	}
	return b.String()
}
