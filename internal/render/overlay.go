// Package render draws detection boxes over the source image and encodes the
// result.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/i18n"
	"github.com/MeKo-Tech/roadsign/internal/preprocess"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options controls overlay appearance.
type Options struct {
	BoxColor   color.Color
	TextColor  color.Color
	Thickness  int
	ShowLabels bool
}

// DefaultOptions draws 2px red boxes with white-on-red labels.
func DefaultOptions() Options {
	return Options{
		BoxColor:   color.RGBA{R: 230, G: 30, B: 30, A: 255},
		TextColor:  color.White,
		Thickness:  2,
		ShowLabels: true,
	}
}

// PixelRect converts a normalized [ymin, xmin, ymax, xmax] box to pixel
// coordinates of a width×height image. The result is not clipped.
func PixelRect(b detector.Box, width, height int) image.Rectangle {
	x0 := int(math.Round(float64(b.XMin()) * float64(width)))
	y0 := int(math.Round(float64(b.YMin()) * float64(height)))
	x1 := int(math.Round(float64(b.XMax()) * float64(width)))
	y1 := int(math.Round(float64(b.YMax()) * float64(height)))
	return image.Rect(x0, y0, x1, y1)
}

// Draw returns an RGBA copy of img with every detection outlined and,
// optionally, labelled. img is not modified.
func Draw(img image.Image, dets []detector.Detection, opts Options) *image.RGBA {
	if preprocess.IsNil(img) {
		return nil
	}
	if opts.BoxColor == nil {
		opts.BoxColor = DefaultOptions().BoxColor
	}
	if opts.TextColor == nil {
		opts.TextColor = color.White
	}

	src := imaging.Clone(img)
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for _, d := range dets {
		rect := PixelRect(d.Box, w, h)
		drawRect(dst, rect, opts.BoxColor, opts.Thickness)
		if opts.ShowLabels {
			drawLabel(dst, rect, fmt.Sprintf("%s %s%%", d.Label, i18n.Percent(d.Confidence)), opts)
		}
	}
	return dst
}

// drawRect outlines rect clipped to dst.
func drawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Canon().Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	fill := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness),
		image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y),
		image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(rect), fill, image.Point{}, draw.Src)
	}
}

// drawLabel writes text on a filled tag above rect, or inside it when there
// is no room above.
func drawLabel(dst *image.RGBA, rect image.Rectangle, text string, opts Options) {
	face := basicfont.Face7x13
	rect = rect.Canon()
	textW := font.MeasureString(face, text).Ceil()
	textH := face.Metrics().Height.Ceil()

	top := rect.Min.Y - textH - 2
	if top < dst.Bounds().Min.Y {
		top = rect.Min.Y
	}
	tag := image.Rect(rect.Min.X, top, rect.Min.X+textW+4, top+textH+2).Intersect(dst.Bounds())
	if tag.Empty() {
		return
	}
	draw.Draw(dst, tag, image.NewUniform(opts.BoxColor), image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(opts.TextColor),
		Face: face,
		Dot:  fixed.P(tag.Min.X+2, tag.Min.Y+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB". It returns nil when s is not
// a valid colour.
func ParseHexColor(s string) color.Color {
	if s == "" {
		return nil
	}
	if s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return nil
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return nil
	}
	return color.RGBA{uint8(rv), uint8(gv), uint8(bv), 255} //nolint:gosec // G115: values are 0..255
}
