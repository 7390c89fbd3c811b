package tensor

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	data := make([]float32, 2*3*Channels)
	tt, err := NewImageTensor(data, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 3}, tt.Shape)
	require.NoError(t, Verify(tt))

	_, err = NewImageTensor(nil, 2, 2)
	require.Error(t, err)

	_, err = NewImageTensor(make([]float32, 5), 2, 2)
	require.Error(t, err)
}

func TestValidateNHWC(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		wantErr bool
	}{
		{"valid", []int64{1, 224, 224, 3}, false},
		{"rank too small", []int64{224, 224, 3}, true},
		{"zero dim", []int64{1, 0, 224, 3}, true},
		{"negative dim", []int64{1, 224, -1, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNHWC(tt.shape)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyLengthMismatch(t *testing.T) {
	err := Verify(Tensor{Data: make([]float32, 10), Shape: []int64{1, 2, 2, 3}})
	assert.Error(t, err)
}

func TestElements(t *testing.T) {
	assert.Equal(t, 1, Elements(nil))
	assert.Equal(t, 1, Elements([]int64{1}))
	assert.Equal(t, 40, Elements([]int64{1, 10, 4}))
	assert.Equal(t, 224*224*3, Elements([]int64{1, 224, 224, 3}))
}

func TestSize(t *testing.T) {
	assert.Equal(t, 300, Tensor{Shape: []int64{1, 300, 300, 3}}.Size())
	assert.Equal(t, 0, Tensor{Shape: []int64{1, 300, 200, 3}}.Size())
	assert.Equal(t, 0, Tensor{Shape: []int64{300}}.Size())
}

func TestNativeBytes(t *testing.T) {
	tt := Tensor{Data: []float32{0, 1, 0.5}, Shape: []int64{3}}
	b := tt.NativeBytes()
	require.Len(t, b, 12)
	for i, want := range tt.Data {
		got := math.Float32frombits(binary.NativeEndian.Uint32(b[i*4:]))
		assert.InDelta(t, want, got, 0)
	}
}

func TestStats(t *testing.T) {
	minV, maxV, mean := Stats([]float32{0, 0.5, 1})
	assert.InDelta(t, 0, minV, 1e-6)
	assert.InDelta(t, 1, maxV, 1e-6)
	assert.InDelta(t, 0.5, mean, 1e-6)

	minV, maxV, mean = Stats(nil)
	assert.Zero(t, minV)
	assert.Zero(t, maxV)
	assert.Zero(t, mean)
}
