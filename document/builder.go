// Package document assembles LaTeX fragments of individual site pages into
// a single document and finalizes it.
package document

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"peo/config"
	"peo/latex"
	"peo/normalize"
	"peo/refs"
	"peo/style"
)

const appendixHeader = `\titleformat{\section}
{\Large\bfseries\sffamily\color{titleblue}}
{\StyledTitleBox{Appendix}}
{0pt}
{\TitleUnderline{\enspace{}#1}}
\appendix
`

const pageBreak = "\n\\newpage\n\n"

// Builder accumulates document content. It owns all per build state: color
// palette, discovered references, class usage and debug output.
// NOTE: not to be used concurrently!
type Builder struct {
	cfg     *config.DocumentConfig
	baseURL string
	log     *zap.Logger
	tr      *latex.Transformer

	palette  *style.Palette
	refs     refs.Index
	problems map[int]bool

	classes     map[string][]int
	content     strings.Builder
	debugHTML   strings.Builder
	hasAppendix bool
	pages       int // pages appended to the current section
}

// New creates empty builder. baseURL is used to produce absolute links to
// the site.
func New(cfg *config.DocumentConfig, baseURL string, log *zap.Logger) *Builder {
	log = log.Named("document")
	return &Builder{
		cfg:      cfg,
		baseURL:  baseURL,
		log:      log,
		tr:       latex.NewTransformer(log.Named("latex")),
		palette:  style.NewPalette(),
		problems: make(map[int]bool),
		classes:  make(map[string][]int),
	}
}

// Refs gives access to references discovered so far. Sets keep growing while
// content is appended.
func (b *Builder) Refs() *refs.Index {
	return &b.refs
}

// Palette returns colors registered so far.
func (b *Builder) Palette() *style.Palette {
	return b.palette
}

// Content returns accumulated content before finalization.
func (b *Builder) Content() string {
	return b.content.String()
}

// AppendLiteral scans markup for references and appends it as is.
func (b *Builder) AppendLiteral(markup string) {
	b.refs.Scan(markup)
	b.content.WriteString(markup)
}

// AppendPage appends single page, in spaced mode page starts on a new sheet
// unless it is the first page of its section.
func (b *Builder) AppendPage(markup string) {
	if b.cfg.Spaced && b.pages > 0 {
		b.AppendLiteral(pageBreak)
	}
	b.pages++
	b.AppendLiteral(markup)
}

// AppendProblem appends page for problem id.
func (b *Builder) AppendProblem(id int, markup string) {
	b.problems[id] = true
	b.AppendPage(markup)
	b.AppendLiteral("\n\n")
}

// AppendAbout appends appendix page. The first one opens appendix section.
func (b *Builder) AppendAbout(markup string) {
	if !b.hasAppendix {
		b.hasAppendix = true
		b.pages = 0
		b.AppendLiteral(appendixHeader)
	}
	b.AppendPage(markup)
	b.AppendLiteral("\n\n")
}

var problemTitleRe = regexp.MustCompile(`^#(?P<id>\d+)\s+(?P<name>.*?) - Project Euler$`)

// ProcessProblemHTML converts problem page and appends it.
func (b *Builder) ProcessProblemHTML(id int, data []byte) error {
	doc, err := parsePage(data)
	if err != nil {
		return fmt.Errorf("problem %d: %w", id, err)
	}
	root := findElement(doc, func(n *html.Node) bool { return hasClass(n, "problem_content") })
	if root == nil {
		return fmt.Errorf("problem %d: page has no problem content", id)
	}

	b.recordClasses(id, root)
	normalize.Node(root, b.log)

	fragment, err := renderNode(root)
	if err != nil {
		return fmt.Errorf("problem %d: %w", id, err)
	}
	body, err := b.tr.Transform(fragment, b.palette)
	if err != nil {
		return fmt.Errorf("problem %d: %w", id, err)
	}

	name := b.problemName(id, doc)
	b.AppendProblem(id, fmt.Sprintf("\\section[Problem \\#%d: %s]{%s}\n\\label{sec:problem_%d}\n\n%s", id, name, name, id, body))

	fmt.Fprintf(&b.debugHTML, "<!-- Problem %d -->\n\n%s\n\n", id, fragment)
	return nil
}

func (b *Builder) problemName(id int, doc *html.Node) string {
	var title string
	if t := findElement(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		title = strings.TrimSpace(textContent(t))
	}
	m := problemTitleRe.FindStringSubmatch(title)
	if m == nil {
		b.log.Warn("Unexpected problem page title", zap.Int("id", id), zap.String("title", title))
		if title == "" {
			title = "Problem " + strconv.Itoa(id)
		}
		return latex.Escape(title)
	}
	return latex.Escape(m[problemTitleRe.SubexpIndex("name")])
}

var aboutTitleRe = regexp.MustCompile(`^About(?:\.\.\.|…)\s*`)

// ProcessAboutHTML converts appendix page found at path and appends it.
func (b *Builder) ProcessAboutHTML(path string, data []byte) error {
	doc, err := parsePage(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	root := findElement(doc, func(n *html.Node) bool { return attrValue(n, "id") == "about_page" })
	if root == nil {
		return fmt.Errorf("%s: page has no about content", path)
	}

	var title string
	if h := extractHeading(root); h != nil {
		title = aboutTitleRe.ReplaceAllString(strings.TrimSpace(textContent(h)), "")
	}
	title = latex.Escape(title)

	normalize.Node(root, b.log)
	fragment, err := renderNode(root)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	body, err := b.tr.Transform(fragment, b.palette)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	b.AppendAbout(fmt.Sprintf("\\section[Appendix: %s]{%s}\n\\label{sec:%s}\n\n%s", title, title, path, body))

	fmt.Fprintf(&b.debugHTML, "<!-- About %s -->\n\n%s\n\n", path, fragment)
	return nil
}

func (b *Builder) recordClasses(id int, root *html.Node) {
	for n := range root.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		for _, c := range strings.Fields(attrValue(n, "class")) {
			b.classes[c] = append(b.classes[c], id)
		}
	}
}

func parsePage(data []byte) (*html.Node, error) {
	r, err := charset.NewReader(bytes.NewReader(data), "text/html")
	if err != nil {
		return nil, fmt.Errorf("unable to detect page encoding: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse page: %w", err)
	}
	return doc, nil
}

func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("unable to render page content: %w", err)
	}
	return buf.String(), nil
}

func findElement(root *html.Node, match func(*html.Node) bool) *html.Node {
	for n := range root.Descendants() {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
	}
	return nil
}

var headingAtoms = []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

// extractHeading removes the most important heading from the tree and
// returns it.
func extractHeading(root *html.Node) *html.Node {
	for _, a := range headingAtoms {
		if h := findElement(root, func(n *html.Node) bool { return n.DataAtom == a }); h != nil {
			h.Parent.RemoveChild(h)
			return h
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}
