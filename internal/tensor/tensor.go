// Package tensor holds the float32 NHWC image tensors passed to the
// inference engines, with shape checks and debug statistics.
package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Channels is the number of colour channels carried per pixel.
const Channels = 3

// Tensor is a float32 model input. Image tensors are NHWC with
// channel-interleaved pixels (R,G,B per pixel, row-major).
type Tensor struct {
	Data  []float32
	Shape []int64 // [N, H, W, C]
}

// NewImageTensor wraps data as a single-image tensor of shape [1, h, w, 3].
func NewImageTensor(data []float32, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	expected := h * w * Channels
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(h), int64(w), Channels}}, nil
}

// ValidateNHWC ensures a shape is [N, H, W, C] with positive dimensions.
func ValidateNHWC(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// Verify checks that the data length matches the NHWC shape.
func Verify(t Tensor) error {
	if err := ValidateNHWC(t.Shape); err != nil {
		return err
	}
	expected := Elements(t.Shape)
	if len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// Elements returns the product of all dimensions of shape.
// An empty shape describes a scalar and has one element.
func Elements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// Size returns the square spatial size of an image tensor, or 0 when the
// tensor is not a square NHWC image.
func (t Tensor) Size() int {
	if len(t.Shape) != 4 || t.Shape[1] != t.Shape[2] {
		return 0
	}
	return int(t.Shape[1])
}

// NativeBytes encodes the data as 4-byte floats in the host byte order, the
// layout expected by runtimes that copy raw input buffers.
func (t Tensor) NativeBytes() []byte {
	out := make([]byte, len(t.Data)*4)
	for i, v := range t.Data {
		binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// Stats computes min, max and mean for debug output.
func Stats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
