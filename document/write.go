package document

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/google/uuid"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"peo/config"
	"peo/misc"
)

//go:embed template.tex
var defaultTemplate []byte

// Names of diagnostic artifacts written next to the document.
const (
	DebugClassesName = "debug_classes.txt"
	DebugOutputName  = "debug_output.html"
)

// BuildName returns document name for the build.
func BuildName(base string, spaced bool) string {
	if spaced {
		return base + "_spaced"
	}
	return base
}

// Values is a struct that holds variables we make available for template
// expansion.
type Values struct {
	Preamble  string
	Content   string
	BuildID   string
	BuildName string
	BaseURL   string
	Spaced    bool
	Program   string
	Version   string
}

var characterReplacer = strings.NewReplacer(
	"’", `\textquoteright{}`,
	"⌈", `\ensuremath{⌈}`,
	"⌉", `\ensuremath{⌉}`,
	"⌊", `\ensuremath{⌊}`,
	"⌋", `\ensuremath{⌋}`,
	"↔", `\ensuremath{↔}`,
	"∅", `\ensuremath{∅}`,
	"∈", `\ensuremath{∈}`,
	"∑", `\ensuremath{∑}`,
	"≠", `\ensuremath{≠}`,
	"∩", `\ensuremath{∩}`,
	"≈", `\ensuremath{≈}`,
	"≡", `\ensuremath{≡}`,
	"≤", `\ensuremath{≤}`,
	"≥", `\ensuremath{≥}`,
	"⋅", `\ensuremath{⋅}`,
	"①", `\circled{1}`,
	"②", `\circled{2}`,
	"③", `\circled{3}`,
	"④", `\circled{4}`,
	"⑤", `\circled{5}`,
	"⑥", `\circled{6}`,
	"⑦", `\circled{7}`,
	"⑧", `\circled{8}`,
	"⑨", `\circled{9}`,
	"⑩", `\circled{10}`,
	"⑪", `\circled{11}`,
	"ń", `\'{n}`,
	"μ", `\ensuremath{μ}`,
	"π", `\ensuremath{π}`,
	"ω", `\ensuremath{ω}`,
)

var (
	attachmentRe  = regexp.MustCompile(`\\href\{(?P<base>[^\s}]*?)(?P<file>[^/}]*?\.txt)\}\{(?P<label>[^}]*?)\}`)
	saveHintRe    = regexp.MustCompile(`\s*\(right\s+click\s+and\s+['"]Save\s+Link/Target\s+As(?:\.\.\.|…)['"]\)`)
	problemLinkRe = regexp.MustCompile(`\\href\{problem=(?P<id>\d+)\}\{(?P<label>[^}]*?)\}`)
	aboutLinkRe   = regexp.MustCompile(`\\href\{about=(?P<id>[^}]+)\}\{(?P<label>[^}]*?)\}`)
)

// resolveLinks turns links to site pages into document internal references
// and links to attachments into embedded files.
func (b *Builder) resolveLinks(content string) string {
	content = attachmentRe.ReplaceAllStringFunc(content, func(s string) string {
		m := attachmentRe.FindStringSubmatch(s)
		base, file, label := m[1], m[2], m[3]
		return fmt.Sprintf(`\textattachfile[color=%s]{%s}{%s}\footnote{Source: \url{%s%s%s}}`,
			b.cfg.LinkColor, config.CleanFileName(file), label, b.baseURL, base, file)
	})
	content = saveHintRe.ReplaceAllString(content, "")

	content = problemLinkRe.ReplaceAllStringFunc(content, func(s string) string {
		m := problemLinkRe.FindStringSubmatch(s)
		id, label := m[1], m[2]
		if n, err := strconv.Atoi(id); err == nil && b.problems[n] {
			return fmt.Sprintf(`\hyperref[sec:problem_%s]{%s}`, id, label)
		}
		// problem is not part of this document
		return fmt.Sprintf(`\href{%sproblem=%s}{%s}`, b.baseURL, id, label)
	})

	return aboutLinkRe.ReplaceAllString(content, `\hyperref[sec:about=${id}]{${label}}`)
}

func (b *Builder) loadTemplate() (*template.Template, error) {
	name, data := "template.tex", defaultTemplate
	if b.cfg.TemplatePath != "" {
		var err error
		if data, err = os.ReadFile(b.cfg.TemplatePath); err != nil {
			return nil, fmt.Errorf("unable to read document template: %w", err)
		}
		name = filepath.Base(b.cfg.TemplatePath)
	}
	tmpl, err := template.New(name).Delims("<<", ">>").Funcs(sprig.FuncMap()).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("unable to parse document template %s: %w", name, err)
	}
	return tmpl, nil
}

// Write finalizes the document and writes it with diagnostic artifacts into
// dir. Returns path to produced LaTeX source.
func (b *Builder) Write(dir, buildName string) (string, error) {
	tmpl, err := b.loadTemplate()
	if err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("unable to generate build id: %w", err)
	}

	values := Values{
		Preamble:  b.palette.Definitions(),
		Content:   b.resolveLinks(b.content.String()),
		BuildID:   id.String(),
		BuildName: buildName,
		BaseURL:   b.baseURL,
		Spaced:    b.cfg.Spaced,
		Program:   misc.GetAppName(),
		Version:   misc.GetVersion(),
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", fmt.Errorf("unable to expand document template: %w", err)
	}
	out := characterReplacer.Replace(norm.NFC.String(buf.String()))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("unable to create output directory: %w", err)
	}
	texPath := filepath.Join(dir, buildName+".tex")
	if err := os.WriteFile(texPath, []byte(out), 0644); err != nil {
		return "", fmt.Errorf("unable to write document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DebugClassesName), []byte(b.classReport()), 0644); err != nil {
		return "", fmt.Errorf("unable to write class report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DebugOutputName), []byte(b.debugHTML.String()), 0644); err != nil {
		return "", fmt.Errorf("unable to write debug output: %w", err)
	}

	b.log.Info("Document written",
		zap.String("path", texPath),
		zap.String("build", id.String()),
		zap.Int("problems", len(b.problems)),
		zap.Int("appendices", b.refs.Appendices.Len()),
		zap.Int("colors", b.palette.Len()))
	return texPath, nil
}

// classReport lists every observed class in natural order, followed by
// problems where each class was seen.
func (b *Builder) classReport() string {
	keys := make([]string, 0, len(b.classes))
	for k := range b.classes {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))

	var sb strings.Builder
	sb.WriteString(strings.Join(keys, ", "))
	sb.WriteByte('\n')
	for _, k := range keys {
		ids := b.classes[k]
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = strconv.Itoa(id)
		}
		fmt.Fprintf(&sb, "%s: %s\n", k, strings.Join(strs, ", "))
	}
	return sb.String()
}
