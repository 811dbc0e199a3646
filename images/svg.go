package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	// side of the canvas when drawing has no viewBox
	defaultSVGSide = 512
	// drawings are rendered at twice the nominal size so they stay sharp in
	// print
	svgScale = 2.0
)

// maxRasterDim caps either side of rendered drawing.
var maxRasterDim = 4096

// rasterizeSVG renders drawing onto white canvas, viewBox size multiplied by
// scale gives canvas size in pixels.
func rasterizeSVG(data []byte, scale float64) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	side := func(v float64) float64 {
		if v <= 0 {
			return defaultSVGSide
		}
		return v
	}
	fw, fh := side(icon.ViewBox.W)*scale, side(icon.ViewBox.H)*scale
	if longest := math.Max(fw, fh); longest > float64(maxRasterDim) {
		fw, fh = fw*float64(maxRasterDim)/longest, fh*float64(maxRasterDim)/longest
	}
	w, h := max(int(math.Round(fw)), 1), max(int(math.Round(fh)), 1)

	icon.SetTarget(0, 0, float64(w), float64(h))

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return canvas, nil
}
