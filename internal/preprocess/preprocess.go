// Package preprocess turns arbitrary images into the fixed-size,
// channel-interleaved float tensors the road sign models consume.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"reflect"

	"github.com/MeKo-Tech/roadsign/internal/mempool"
	"github.com/MeKo-Tech/roadsign/internal/tensor"
	"github.com/disintegration/imaging"
)

// Model input resolutions.
const (
	ClassifierSize = 224
	DetectorSize   = 300
)

var (
	ErrNilImage    = errors.New("input image is nil")
	ErrEmptyImage  = errors.New("input image has no pixels")
	ErrInvalidSize = errors.New("target size must be positive")
	ErrBufferSize  = errors.New("buffer length does not match target size")
)

// ImageProcessingError represents errors that can occur during preprocessing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// Length returns the number of floats in a tensor for a size×size input.
func Length(size int) int { return size * size * tensor.Channels }

// Resize stretches img to size×size with a bilinear filter. Aspect ratio is
// not preserved.
func Resize(img image.Image, size int) *image.NRGBA {
	return imaging.Resize(img, size, size, imaging.Linear)
}

// Prepare resizes img to size×size and encodes it as an NHWC tensor whose
// values are the 8-bit R, G and B channels divided by 255.
func Prepare(img image.Image, size int) (tensor.Tensor, error) {
	return PrepareInto(img, size, nil)
}

// PrepareInto is Prepare writing into buf, which must have Length(size)
// elements. A nil buf allocates.
func PrepareInto(img image.Image, size int, buf []float32) (tensor.Tensor, error) {
	if err := validate(img, size); err != nil {
		return tensor.Tensor{}, err
	}
	n := Length(size)
	if buf == nil {
		buf = make([]float32, n)
	} else if len(buf) != n {
		return tensor.Tensor{}, &ImageProcessingError{
			Operation: "prepare",
			Err:       fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(buf), n),
		}
	}

	resized := Resize(img, size)
	fill(buf, resized, size)
	return tensor.NewImageTensor(buf, size, size)
}

// IsNil reports whether img is nil or an interface holding a nil pointer,
// such as (*image.RGBA)(nil).
func IsNil(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

func validate(img image.Image, size int) error {
	if IsNil(img) {
		return &ImageProcessingError{Operation: "prepare", Err: ErrNilImage}
	}
	if size <= 0 {
		return &ImageProcessingError{Operation: "prepare", Err: fmt.Errorf("%w: %d", ErrInvalidSize, size)}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return &ImageProcessingError{Operation: "prepare", Err: ErrEmptyImage}
	}
	return nil
}

// fill walks rows then columns and writes R, G, B for every pixel.
func fill(dst []float32, src *image.NRGBA, size int) {
	i := 0
	for y := range size {
		row := src.Pix[y*src.Stride : y*src.Stride+size*4]
		for x := range size {
			p := row[x*4 : x*4+3 : x*4+3]
			dst[i] = float32(p[0]) / 255
			dst[i+1] = float32(p[1]) / 255
			dst[i+2] = float32(p[2]) / 255
			i += 3
		}
	}
}

// Acquire takes a pooled buffer sized for a size×size tensor.
func Acquire(size int) []float32 {
	return mempool.ForLength(Length(size)).Get()
}

// Release returns a buffer obtained from Acquire.
func Release(buf []float32) {
	if buf == nil {
		return
	}
	mempool.ForLength(cap(buf)).Put(buf)
}
