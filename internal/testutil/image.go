package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Gray128 is the mid-gray used by end-to-end classification tests.
var Gray128 = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// UniformImage returns an opaque image filled with c.
func UniformImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// SignImage draws a crude speed-limit sign: a red ring on a white disc over
// a gray background.
func SignImage(width, height int) *image.RGBA {
	img := UniformImage(width, height, color.RGBA{90, 90, 90, 255})
	cx, cy := width/2, height/2
	r := min(width, height) * 2 / 5
	ring := r * 4 / 5
	for y := range height {
		for x := range width {
			dx, dy := x-cx, y-cy
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= ring*ring:
				img.Set(x, y, color.White)
			case d2 <= r*r:
				img.Set(x, y, color.RGBA{200, 20, 20, 255})
			}
		}
	}
	return img
}

// EncodePNG encodes img as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// SaveImage writes img to path as JPEG for .jpg/.jpeg and PNG otherwise.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		data = EncodeJPEG(t, img)
	default:
		data = EncodePNG(t, img)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
