// Package normalize rewrites HTML fragments so that styling expressed through
// inline style attributes becomes visible as classes to the document tree
// reader.
package normalize

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"peo/style"
)

// Node rewrites subtree below root in place. Every p or blockquote carrying
// class or style attribute is wrapped into div whose classes are the union of
// element classes and classes derived from its style. Every span with style
// attribute gets derived classes merged into its own class list. Text and
// nesting are preserved, root itself is never wrapped.
func Node(root *html.Node, log *zap.Logger) {
	var blocks, spans []*html.Node
	for n := range root.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.P, atom.Blockquote:
			if hasAttr(n, "class") || hasAttr(n, "style") {
				blocks = append(blocks, n)
			}
		case atom.Span:
			if hasAttr(n, "style") {
				spans = append(spans, n)
			}
		}
	}

	for _, n := range blocks {
		classes := elementTags(n, log)
		if len(classes) == 0 {
			continue
		}
		wrapper := &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr:     []html.Attribute{{Key: "class", Val: strings.Join(classes.Strings(), " ")}},
		}
		n.Parent.InsertBefore(wrapper, n)
		n.Parent.RemoveChild(n)
		wrapper.AppendChild(n)
	}

	for _, n := range spans {
		setAttr(n, "class", strings.Join(elementTags(n, log).Strings(), " "))
	}
}

// elementTags returns union of element classes and tags derived from its
// style attribute.
func elementTags(n *html.Node, log *zap.Logger) style.Tags {
	cls, _ := getAttr(n, "class")
	decl, _ := getAttr(n, "style")

	derived, ignored := style.Classify(decl)
	for _, d := range ignored {
		log.Debug("Ignoring unrecognized style declaration", zap.String("element", n.Data), zap.String("declaration", d))
	}
	return style.FromClasses(strings.Fields(cls)).Union(derived)
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := getAttr(n, key)
	return ok
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
