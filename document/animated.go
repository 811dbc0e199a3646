package document

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// AnimatedResource describes rasterized image resource.
type AnimatedResource struct {
	// URLPath is the path image was referenced by in the content.
	URLPath string
	// FilePath is local file relative to the output directory.
	FilePath string
	// Frames is number of frames, 1 means still image.
	Frames int
}

// graphicsRe matches inclusions the same way reference scanner does, any
// number of option blocks is allowed.
var graphicsRe = regexp.MustCompile(`\\includegraphics(?P<options>(?:\[[^\]]*\])*)\{(?P<path>[^}]+)\}`)

// lastOptions returns content of the last option block, it is the one
// graphicx applies.
func lastOptions(blocks string) string {
	if blocks == "" {
		return ""
	}
	return strings.TrimSuffix(blocks[strings.LastIndex(blocks, "[")+1:], "]")
}

func withoutExt(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimSuffix(p, path.Ext(p))
}

// ProcessAnimatedResources replaces inclusion of every image having a record
// with either rasterized still or animation. Images without record are left
// untouched.
func (b *Builder) ProcessAnimatedResources(resources []AnimatedResource) {
	lookup := make(map[string]AnimatedResource, len(resources))
	for _, r := range resources {
		lookup[r.URLPath] = r
	}
	rate := max(b.cfg.FrameRate, 1)

	var replaced int
	content := graphicsRe.ReplaceAllStringFunc(b.content.String(), func(s string) string {
		m := graphicsRe.FindStringSubmatch(s)
		options, src := lastOptions(m[1]), m[2]
		r, ok := lookup[src]
		if !ok || r.Frames < 1 {
			return s
		}
		replaced++
		base := withoutExt(r.FilePath)

		if r.Frames == 1 {
			if options != "" {
				return fmt.Sprintf(`\includegraphics[%s]{%s.png}`, options, base)
			}
			return fmt.Sprintf(`\includegraphics{%s.png}`, base)
		}

		opts := `controls=all,keepaspectratio,loop,width=\linewidth`
		if options != "" {
			opts += "," + options
		}
		return fmt.Sprintf(`\animategraphics[%s]{%d}{%s-}{0}{%d}`, opts, rate, base, r.Frames-1)
	})

	b.content.Reset()
	b.content.WriteString(content)
	b.log.Debug("Animated resources processed", zap.Int("records", len(resources)), zap.Int("replaced", replaced))
}
