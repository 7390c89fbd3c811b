package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genPatternImage builds a deterministic, non-uniform image from a seed.
func genPatternImage(width, height, seed int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.NRGBA{
				R: uint8((x*7 + seed) % 256),
				G: uint8((y*13 + seed*3) % 256),
				B: uint8((x + y + seed) % 256),
				A: uint8(128 + (x*y+seed)%128),
			})
		}
	}
	return img
}

func TestPrepare_LengthAndRange(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("tensor has size²×3 values in [0,1]", prop.ForAll(
		func(width, height, size, seed int) bool {
			tt, err := Prepare(genPatternImage(width, height, seed), size)
			if err != nil {
				return false
			}
			if len(tt.Data) != size*size*3 {
				return false
			}
			for _, v := range tt.Data {
				if v < 0 || v > 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 64),
		gen.IntRange(1, 48),
		gen.IntRange(0, 255),
	))

	properties.TestingRun(t)
}

func TestPrepare_IsPure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same image and size yield the same tensor", prop.ForAll(
		func(width, height, size, seed int) bool {
			img := genPatternImage(width, height, seed)
			a, errA := Prepare(img, size)
			b, errB := Prepare(img, size)
			if errA != nil || errB != nil || len(a.Data) != len(b.Data) {
				return false
			}
			for i := range a.Data {
				if a.Data[i] != b.Data[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 48),
		gen.IntRange(1, 48),
		gen.IntRange(1, 32),
		gen.IntRange(0, 255),
	))

	properties.TestingRun(t)
}

func TestPrepare_UniformImagesStayUniform(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("opaque uniform colour maps to channel/255 everywhere", prop.ForAll(
		func(r, g, b, size int) bool {
			img := image.NewNRGBA(image.Rect(0, 0, 17, 9))
			c := color.NRGBA{uint8(r), uint8(g), uint8(b), 255}
			for y := range 9 {
				for x := range 17 {
					img.Set(x, y, c)
				}
			}
			tt, err := Prepare(img, size)
			if err != nil {
				return false
			}
			want := [3]float32{float32(r) / 255, float32(g) / 255, float32(b) / 255}
			for i := 0; i < len(tt.Data); i += 3 {
				if tt.Data[i] != want[0] || tt.Data[i+1] != want[1] || tt.Data[i+2] != want[2] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 255),
		gen.IntRange(0, 255),
		gen.IntRange(0, 255),
		gen.IntRange(1, 24),
	))

	properties.TestingRun(t)
}
