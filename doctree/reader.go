package doctree

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse reads HTML fragment into document tree. HTML parser recovers from
// malformed markup by itself, so only I/O problems are reported.
func Parse(r io.Reader) (*Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, context)
	if err != nil {
		return nil, fmt.Errorf("unable to parse html fragment: %w", err)
	}
	doc := New(KindDocument)
	readBlocks(doc, nodes)
	return doc, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

var containerAtoms = map[atom.Atom]bool{
	atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Header: true, atom.Footer: true, atom.Aside: true, atom.Nav: true,
	atom.Figure: true, atom.Form: true, atom.Address: true, atom.Fieldset: true,
	atom.Center: true, atom.Html: true, atom.Body: true, atom.Li: true,
	atom.Dt: true, atom.Dd: true,
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Blockquote: true, atom.Ul: true, atom.Ol: true,
	atom.Dl: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Pre: true, atom.Hr: true, atom.Table: true,
}

var skippedAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Head: true, atom.Title: true,
	atom.Noscript: true, atom.Template: true, atom.Meta: true, atom.Link: true,
}

func isBlock(h *html.Node) bool {
	return h.Type == html.ElementNode && (blockAtoms[h.DataAtom] || containerAtoms[h.DataAtom])
}

func isSkipped(h *html.Node) bool {
	switch h.Type {
	case html.TextNode:
		return false
	case html.ElementNode:
		return skippedAtoms[h.DataAtom]
	default:
		// comments, doctype
		return true
	}
}

func children(h *html.Node) []*html.Node {
	var out []*html.Node
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func attr(h *html.Node, key string) (string, bool) {
	for _, a := range h.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func readAttr(h *html.Node) Attr {
	var a Attr
	a.ID, _ = attr(h, "id")
	if cls, ok := attr(h, "class"); ok {
		a.Classes = strings.Fields(cls)
	}
	a.Width, _ = attr(h, "width")
	a.Height, _ = attr(h, "height")
	return a
}

// readBlocks converts sequence of HTML nodes into blocks. Runs of inline
// content between block elements become Plain blocks.
func readBlocks(parent *Node, nodes []*html.Node) {
	var pending []*html.Node

	flush := func() {
		if len(pending) == 0 {
			return
		}
		plain := New(KindPlain)
		readInlines(plain, pending)
		pending = nil
		if normalizeInlines(plain) {
			parent.Append(plain)
		}
	}

	for _, h := range nodes {
		if isSkipped(h) {
			continue
		}
		if isBlock(h) {
			flush()
			readBlock(parent, h)
			continue
		}
		pending = append(pending, h)
	}
	flush()
}

func readBlock(parent *Node, h *html.Node) {
	switch h.DataAtom {
	case atom.P:
		para := New(KindPara)
		readInlines(para, children(h))
		if normalizeInlines(para) {
			parent.Append(para)
		}

	case atom.Blockquote:
		quote := New(KindBlockQuote)
		quote.Attr = readAttr(h)
		readBlocks(quote, children(h))
		parent.Append(quote)

	case atom.Ul, atom.Ol:
		list := New(KindBulletList)
		if h.DataAtom == atom.Ol {
			list.Kind = KindOrderedList
			list.Level = 1
			if start, ok := attr(h, "start"); ok {
				fmt.Sscanf(start, "%d", &list.Level)
			}
		}
		readListItems(list, h)
		parent.Append(list)

	case atom.Dl:
		list := New(KindDefinitionList)
		for _, c := range children(h) {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Dt:
				term := New(KindTerm)
				readInlines(term, children(c))
				normalizeInlines(term)
				list.Append(term)
			case atom.Dd:
				def := New(KindDefinition)
				readBlocks(def, children(c))
				list.Append(def)
			}
		}
		parent.Append(list)

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		header := New(KindHeader)
		header.Attr = readAttr(h)
		header.Level = int(h.Data[1] - '0')
		readInlines(header, children(h))
		normalizeInlines(header)
		parent.Append(header)

	case atom.Pre:
		text := strings.TrimPrefix(textContent(h), "\n")
		parent.Append(NewText(KindCodeBlock, strings.TrimRight(text, "\n")))

	case atom.Hr:
		parent.Append(New(KindHorizontalRule))

	case atom.Table:
		table := New(KindTable)
		readRows(table, h)
		if len(table.Children) > 0 {
			parent.Append(table)
		}

	default:
		div := New(KindDiv)
		div.Attr = readAttr(h)
		if h.DataAtom == atom.Center {
			div.Attr.Classes = append(div.Attr.Classes, "center")
		}
		readBlocks(div, children(h))
		parent.Append(div)
	}
}

func readListItems(list *Node, h *html.Node) {
	var stray []*html.Node
	flush := func() {
		if len(stray) == 0 {
			return
		}
		item := New(KindListItem)
		readBlocks(item, stray)
		stray = nil
		if len(item.Children) > 0 {
			list.Append(item)
		}
	}
	for _, c := range children(h) {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			flush()
			item := New(KindListItem)
			readBlocks(item, children(c))
			list.Append(item)
			continue
		}
		stray = append(stray, c)
	}
	flush()
}

func readRows(table *Node, h *html.Node) {
	for _, c := range children(h) {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Thead, atom.Tbody, atom.Tfoot:
			readRows(table, c)
		case atom.Tr:
			row := New(KindRow)
			for _, td := range children(c) {
				if td.Type != html.ElementNode || (td.DataAtom != atom.Td && td.DataAtom != atom.Th) {
					continue
				}
				cell := New(KindCell)
				cell.Header = td.DataAtom == atom.Th
				readInlines(cell, children(td))
				normalizeInlines(cell)
				row.Append(cell)
			}
			table.Append(row)
		}
	}
}

func readInlines(parent *Node, nodes []*html.Node) {
	for _, h := range nodes {
		if isSkipped(h) {
			continue
		}
		if h.Type == html.TextNode {
			appendText(parent, h.Data)
			continue
		}

		var n *Node
		switch h.DataAtom {
		case atom.Br:
			parent.Append(New(KindLineBreak))
			continue
		case atom.Img:
			img := New(KindImage)
			img.Attr = readAttr(h)
			img.Target, _ = attr(h, "src")
			img.Text, _ = attr(h, "alt")
			parent.Append(img)
			continue
		case atom.Code, atom.Tt, atom.Kbd, atom.Samp:
			parent.Append(NewText(KindCode, textContent(h)))
			continue
		case atom.A:
			n = New(KindSpan)
			if href, ok := attr(h, "href"); ok {
				n.Kind = KindLink
				n.Target = href
			}
		case atom.Span:
			n = New(KindSpan)
		case atom.B, atom.Strong:
			n = New(KindStrong)
		case atom.I, atom.Em, atom.Cite, atom.Var, atom.Dfn:
			n = New(KindEmph)
		case atom.U, atom.Ins:
			n = New(KindUnderline)
		case atom.S, atom.Strike, atom.Del:
			n = New(KindStrikeout)
		case atom.Sup:
			n = New(KindSuperscript)
		case atom.Sub:
			n = New(KindSubscript)
		case atom.Small:
			n = New(KindSpan)
			n.Attr.Classes = []string{"smaller"}
		case atom.Big:
			n = New(KindSpan)
			n.Attr.Classes = []string{"larger"}
		default:
			// unknown or block element in inline context: keep content only
			if isBlock(h) {
				parent.Append(New(KindSpace))
				readInlines(parent, children(h))
				parent.Append(New(KindSpace))
			} else {
				readInlines(parent, children(h))
			}
			continue
		}

		if n.Kind == KindSpan || n.Kind == KindLink {
			a := readAttr(h)
			n.Attr.ID = a.ID
			n.Attr.Classes = append(n.Attr.Classes, a.Classes...)
		}
		readInlines(n, children(h))
		parent.Append(n)
	}
}

func isHTMLSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
}

// appendText splits text into words and inter-word spaces.
func appendText(parent *Node, s string) {
	for s != "" {
		i := strings.IndexFunc(s, isHTMLSpace)
		if i < 0 {
			parent.Append(NewText(KindStr, s))
			return
		}
		if i > 0 {
			parent.Append(NewText(KindStr, s[:i]))
		}
		parent.Append(New(KindSpace))
		s = strings.TrimLeftFunc(s[i:], isHTMLSpace)
	}
}

func textContent(h *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Br {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(h)
	return b.String()
}

// normalizeInlines collapses whitespace the way browsers do: no leading or
// trailing spaces, no consecutive spaces (even across markup boundaries), no
// spaces around line breaks. Returns true if block has any visible content.
func normalizeInlines(block *Node) bool {
	var (
		drop      []*Node
		prevSpace = true
		lastSpace *Node
		visible   bool
	)
	for n := range block.All() {
		switch n.Kind {
		case KindSpace:
			if prevSpace {
				drop = append(drop, n)
				continue
			}
			prevSpace, lastSpace = true, n
		case KindLineBreak:
			if lastSpace != nil {
				drop = append(drop, lastSpace)
			}
			prevSpace, lastSpace = true, nil
		case KindStr, KindCode, KindImage, KindRawInline:
			prevSpace, lastSpace, visible = false, nil, true
		}
	}
	if lastSpace != nil {
		drop = append(drop, lastSpace)
	}
	for _, n := range drop {
		n.Parent.Remove(n)
	}
	return visible
}
