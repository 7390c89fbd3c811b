//go:build !tflite

package engine

// TFLiteAvailable reports whether the TensorFlow Lite backend is compiled in.
// Build with -tags tflite to enable it.
const TFLiteAvailable = false

func newTFLiteRunner(_ []byte, _ Config) (Runner, error) {
	return nil, ErrBackendUnavailable
}
