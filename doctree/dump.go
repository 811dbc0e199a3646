package doctree

import (
	"fmt"
	"strconv"
	"strings"
)

// treeWriter produces indented human readable tree listing.
type treeWriter struct {
	w *strings.Builder
}

func (tw treeWriter) line(depth int, format string, args ...any) {
	for range depth {
		tw.w.WriteString("  ")
	}
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

func quoted(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}

// Dump returns indented listing of the tree, one node per line. Used for
// debugging and in tests.
func (n *Node) Dump() string {
	tw := treeWriter{w: &strings.Builder{}}
	n.dump(tw, 0)
	return tw.w.String()
}

func (n *Node) dump(tw treeWriter, depth int) {
	var details []string
	if n.Text != "" {
		details = append(details, quoted(n.Text))
	}
	if n.Target != "" {
		details = append(details, "target="+quoted(n.Target))
	}
	if n.Level != 0 {
		details = append(details, "level="+strconv.Itoa(n.Level))
	}
	if n.Header {
		details = append(details, "header")
	}
	if n.Attr.ID != "" {
		details = append(details, "id="+quoted(n.Attr.ID))
	}
	if n.Attr.HasClasses() {
		details = append(details, "classes="+strings.Join(n.Attr.Classes, ","))
	}
	if n.Attr.Width != "" || n.Attr.Height != "" {
		details = append(details, fmt.Sprintf("size=%sx%s", n.Attr.Width, n.Attr.Height))
	}

	if len(details) == 0 {
		tw.line(depth, "%s", n.Kind)
	} else {
		tw.line(depth, "%s %s", n.Kind, strings.Join(details, " "))
	}
	for _, c := range n.Children {
		c.dump(tw, depth+1)
	}
}
