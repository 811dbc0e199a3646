// Package images inspects fetched image resources and produces PNG variants
// LaTeX could include: stills for formats pdflatex does not understand and
// coalesced frames of animated GIFs.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format names as reported by Inspect.
const (
	FormatGIF     = "gif"
	FormatPNG     = "png"
	FormatJPEG    = "jpg"
	FormatPDF     = "pdf"
	FormatSVG     = "svg"
	FormatWebP    = "webp"
	FormatBMP     = "bmp"
	FormatTIFF    = "tif"
	FormatUnknown = "unknown"
)

// Info describes image resource.
type Info struct {
	Format string
	Frames int // 1 when not animated
}

// Includable reports whether pdflatex could include resource directly.
func (i Info) Includable() bool {
	switch i.Format {
	case FormatPNG, FormatJPEG, FormatPDF:
		return true
	}
	return false
}

// Inspect detects format of the resource and counts its frames. Name is only
// consulted when content sniffing fails.
func Inspect(data []byte, name string) (Info, error) {
	info := Info{Format: FormatUnknown, Frames: 1}

	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		info.Format = kind.Extension
	} else if looksLikeSVG(data, name) {
		info.Format = FormatSVG
	}

	if info.Format == FormatGIF {
		cfg, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return info, fmt.Errorf("unable to decode gif: %w", err)
		}
		info.Frames = max(len(cfg.Image), 1)
	}
	return info, nil
}

func looksLikeSVG(data []byte, name string) bool {
	if strings.EqualFold(filepath.Ext(name), ".svg") {
		return true
	}
	head := data[:min(len(data), 4096)]
	return bytes.Contains(head, []byte("<svg"))
}

// Variants lists PNG files produced for a resource.
type Variants struct {
	Info
	Still  string   // PNG still, first frame for animations
	Frames []string // <base>-<n>.png, only for animations
}

// StillPath returns path of PNG still for the resource.
func StillPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
}

// FramePath returns path of n-th animation frame for the resource.
func FramePath(path string, n int) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "-" + strconv.Itoa(n) + ".png"
}

// Rasterize reads resource from path and writes PNG variants next to it.
// Returns nil variants when resource is usable as is.
func Rasterize(path string, log *zap.Logger) (*Variants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read resource: %w", err)
	}
	info, err := Inspect(data, path)
	if err != nil {
		return nil, err
	}

	log.Debug("Inspected resource", zap.String("path", path), zap.String("format", info.Format), zap.Int("frames", info.Frames))

	if info.Includable() {
		return nil, nil
	}

	var frames []image.Image
	switch info.Format {
	case FormatGIF:
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("unable to decode gif: %w", err)
		}
		frames = coalesce(g)
	case FormatSVG:
		img, err := rasterizeSVG(data, svgScale)
		if err != nil {
			return nil, fmt.Errorf("unable to rasterize svg: %w", err)
		}
		frames = []image.Image{img}
	case FormatWebP, FormatBMP, FormatTIFF:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("unable to decode %s: %w", info.Format, err)
		}
		frames = []image.Image{img}
	default:
		return nil, fmt.Errorf("unsupported image format %q", info.Format)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames found in %s", path)
	}

	v := &Variants{Info: info, Still: StillPath(path)}
	if err := imaging.Save(frames[0], v.Still); err != nil {
		return nil, fmt.Errorf("unable to save still image: %w", err)
	}
	if len(frames) > 1 {
		for n, frame := range frames {
			name := FramePath(path, n)
			if err := imaging.Save(frame, name); err != nil {
				return nil, fmt.Errorf("unable to save frame %d: %w", n, err)
			}
			v.Frames = append(v.Frames, name)
		}
	}
	return v, nil
}

// coalesce renders every frame of animation onto full canvas honoring
// frame disposal methods.
func coalesce(g *gif.GIF) []image.Image {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		for _, f := range g.Image {
			bounds = bounds.Union(f.Bounds())
		}
	}

	canvas := image.NewNRGBA(bounds)
	frames := make([]image.Image, 0, len(g.Image))
	for i, f := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.NRGBA
		if disposal == gif.DisposalPrevious {
			previous = imaging.Clone(canvas)
		}

		draw.Draw(canvas, f.Bounds(), f, f.Bounds().Min, draw.Over)
		frames = append(frames, imaging.Clone(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, f.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return frames
}
