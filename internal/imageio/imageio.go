// Package imageio loads and decodes input images.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/roadsign/internal/preprocess"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions lists supported file extensions for loading.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// ErrUnsupportedFormat is returned for files whose extension is not supported.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// IsSupported reports whether the path has a supported image extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Metadata captures lightweight file and pixel information.
type Metadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Load opens and decodes an image file.
func Load(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &preprocess.ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return nil, Metadata{}, &preprocess.ImageProcessingError{
			Operation: "load",
			Err:       fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path)),
		}
	}

	f, err := os.Open(path) //nolint:gosec // G304: Reading user-provided image file path is expected
	if err != nil {
		return nil, Metadata{}, &preprocess.ImageProcessingError{Operation: "load", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing image file: %v\n", err)
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, Metadata{}, &preprocess.ImageProcessingError{Operation: "load", Err: err}
	}

	img, meta, err := Decode(f)
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.Path = path
	meta.SizeBytes = fi.Size()
	return img, meta, nil
}

// Decode reads an encoded image of any registered format.
func Decode(r io.Reader) (image.Image, Metadata, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, Metadata{}, &preprocess.ImageProcessingError{Operation: "decode", Err: err}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, Metadata{}, &preprocess.ImageProcessingError{Operation: "decode", Err: preprocess.ErrEmptyImage}
	}
	return img, Metadata{Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

// DecodeBytes decodes an in-memory encoded image.
func DecodeBytes(data []byte) (image.Image, Metadata, error) {
	if len(data) == 0 {
		return nil, Metadata{}, &preprocess.ImageProcessingError{Operation: "decode", Err: errors.New("empty image data")}
	}
	img, meta, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.SizeBytes = int64(len(data))
	return img, meta, nil
}
