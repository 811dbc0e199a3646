package latex

import (
	"fmt"
	"strconv"
	"strings"

	"peo/doctree"
)

var escaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`%`, `\%`,
	`&`, `\&`,
	`#`, `\#`,
	`_`, `\_`,
	`^`, `\^{}`,
	`~`, `\textasciitilde{}`,
	`<`, `\textless{}`,
	`>`, `\textgreater{}`,
	`|`, `\textbar{}`,
	`[`, `{[}`,
	`]`, `{]}`,
	"\u00a0", `~`,
)

// Escape makes arbitrary text safe to be used in LaTeX paragraph.
func Escape(s string) string {
	return escaper.Replace(s)
}

var targetEscaper = strings.NewReplacer(`\`, `\\`, `#`, `\#`, `%`, `\%`, `{`, `\{`, `}`, `\}`)

// Write serializes document tree into LaTeX markup. Blocks are separated by
// empty line.
func Write(doc *doctree.Node) string {
	var b strings.Builder
	writeBlocks(&b, doc.Children)
	return b.String()
}

func writeBlocks(b *strings.Builder, blocks []*doctree.Node) {
	first := true
	for _, n := range blocks {
		var nb strings.Builder
		writeBlock(&nb, n)
		if nb.Len() == 0 {
			continue
		}
		if !first {
			b.WriteString("\n\n")
		}
		first = false
		b.WriteString(nb.String())
	}
}

func renderBlocks(blocks []*doctree.Node) string {
	var b strings.Builder
	writeBlocks(&b, blocks)
	return b.String()
}

var sectionCommands = []string{`\section*`, `\subsection*`, `\subsubsection*`, `\paragraph*`, `\subparagraph*`}

func writeBlock(b *strings.Builder, n *doctree.Node) {
	switch n.Kind {
	case doctree.KindPara, doctree.KindPlain:
		writeInlines(b, n.Children)

	case doctree.KindDiv, doctree.KindDocument, doctree.KindListItem, doctree.KindDefinition:
		writeBlocks(b, n.Children)

	case doctree.KindBlockQuote:
		b.WriteString("\\begin{quote}\n")
		writeBlocks(b, n.Children)
		b.WriteString("\n\\end{quote}")

	case doctree.KindBulletList, doctree.KindOrderedList:
		env := "itemize"
		if n.Kind == doctree.KindOrderedList {
			env = "enumerate"
		}
		b.WriteString(`\begin{` + env + "}\n")
		if n.Kind == doctree.KindOrderedList && n.Level > 1 {
			fmt.Fprintf(b, "\\setcounter{enumi}{%d}\n", n.Level-1)
		}
		for _, item := range n.Children {
			b.WriteString(`\item`)
			if content := renderBlocks(item.Children); content != "" {
				b.WriteByte(' ')
				b.WriteString(content)
			}
			b.WriteByte('\n')
		}
		b.WriteString(`\end{` + env + "}")

	case doctree.KindDefinitionList:
		b.WriteString("\\begin{description}\n")
		for _, c := range n.Children {
			switch c.Kind {
			case doctree.KindTerm:
				b.WriteString(`\item[`)
				writeInlines(b, c.Children)
				b.WriteString("]\n")
			case doctree.KindDefinition:
				b.WriteString(renderBlocks(c.Children))
				b.WriteByte('\n')
			}
		}
		b.WriteString(`\end{description}`)

	case doctree.KindHeader:
		level := min(max(n.Level, 1), len(sectionCommands))
		b.WriteString(sectionCommands[level-1])
		b.WriteByte('{')
		writeInlines(b, n.Children)
		b.WriteByte('}')

	case doctree.KindCodeBlock:
		b.WriteString("\\begin{verbatim}\n")
		b.WriteString(n.Text)
		b.WriteString("\n\\end{verbatim}")

	case doctree.KindHorizontalRule:
		b.WriteString(`\begin{center}\rule{0.5\linewidth}{0.5pt}\end{center}`)

	case doctree.KindTable:
		writeTable(b, n)

	case doctree.KindRawBlock:
		b.WriteString(n.Text)

	default:
		if n.Kind.IsInline() {
			writeInline(b, n)
		}
	}
}

func writeTable(b *strings.Builder, n *doctree.Node) {
	columns := 0
	for _, row := range n.Children {
		columns = max(columns, len(row.Children))
	}
	if columns == 0 {
		return
	}

	b.WriteString(`\begin{tabular}{` + strings.Repeat("l", columns) + "}\n\\hline\n")
	for _, row := range n.Children {
		header := len(row.Children) > 0
		for i, cell := range row.Children {
			if i > 0 {
				b.WriteString(" & ")
			}
			writeInlines(b, cell.Children)
			header = header && cell.Header
		}
		b.WriteString(" \\\\\n")
		if header {
			b.WriteString("\\hline\n")
		}
	}
	b.WriteString("\\hline\n\\end{tabular}")
}

func writeInlines(b *strings.Builder, inlines []*doctree.Node) {
	for _, n := range inlines {
		writeInline(b, n)
	}
}

var inlineCommands = map[doctree.Kind]string{
	doctree.KindEmph:        `\emph`,
	doctree.KindStrong:      `\textbf`,
	doctree.KindUnderline:   `\underline`,
	doctree.KindStrikeout:   `\sout`,
	doctree.KindSuperscript: `\textsuperscript`,
	doctree.KindSubscript:   `\textsubscript`,
}

func writeInline(b *strings.Builder, n *doctree.Node) {
	switch n.Kind {
	case doctree.KindStr:
		b.WriteString(Escape(n.Text))
	case doctree.KindSpace:
		b.WriteByte(' ')
	case doctree.KindLineBreak:
		b.WriteString("\\\\\n")
	case doctree.KindCode:
		b.WriteString(`\texttt{` + Escape(n.Text) + `}`)
	case doctree.KindRawInline:
		b.WriteString(n.Text)
	case doctree.KindSpan:
		writeInlines(b, n.Children)
	case doctree.KindLink:
		b.WriteString(`\href{` + targetEscaper.Replace(n.Target) + `}{`)
		writeInlines(b, n.Children)
		b.WriteByte('}')
	case doctree.KindImage:
		b.WriteString(`\includegraphics`)
		if opts := imageOptions(n.Attr); opts != "" {
			b.WriteString("[" + opts + "]")
		}
		b.WriteString("{" + ImagePath(n.Target) + "}")
	default:
		if cmd, ok := inlineCommands[n.Kind]; ok {
			b.WriteString(cmd + "{")
			writeInlines(b, n.Children)
			b.WriteByte('}')
		}
	}
}

// ImagePath strips query and fragment from image source, what remains is
// used both as resource path and as file name in the output directory.
func ImagePath(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return src
}

func imageOptions(a doctree.Attr) string {
	var opts []string
	if w := dimension(a.Width); w != "" {
		opts = append(opts, "width="+w)
	}
	if h := dimension(a.Height); h != "" {
		opts = append(opts, "height="+h)
	}
	return strings.Join(opts, ",")
}

// dimension converts HTML size attribute into LaTeX length, pixels are
// converted to inches at 96 dpi.
func dimension(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return ""
	}
	if pct, ok := strings.CutSuffix(v, "%"); ok {
		if f, err := strconv.ParseFloat(pct, 64); err == nil && f > 0 {
			return formatLength(f/100) + `\linewidth`
		}
		return ""
	}
	px := strings.TrimSuffix(v, "px")
	if f, err := strconv.ParseFloat(px, 64); err == nil {
		if f <= 0 {
			return ""
		}
		return formatLength(f/96) + "in"
	}
	for _, unit := range []string{"in", "cm", "mm", "pt", "em"} {
		if num, ok := strings.CutSuffix(v, unit); ok {
			if _, err := strconv.ParseFloat(num, 64); err == nil {
				return v
			}
		}
	}
	return ""
}

func formatLength(f float64) string {
	s := strings.TrimRight(strconv.FormatFloat(f, 'f', 5, 64), "0")
	return strings.TrimSuffix(s, ".")
}
