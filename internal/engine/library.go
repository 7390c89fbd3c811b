package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/yalue/onnxruntime_go"
)

// EnvONNXLibrary overrides the ONNX Runtime shared library location.
const EnvONNXLibrary = "ROADSIGN_ONNXRUNTIME_LIB"

const (
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

// systemLibraryPaths returns well-known install locations for the runtime.
func systemLibraryPaths() []string {
	return []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
}

// libraryName returns the runtime's file name for the current OS.
func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return libLinux, nil
	case "darwin":
		return libDarwin, nil
	case "windows":
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}

// LibraryCandidates lists the paths probed for the runtime, in order.
func LibraryCandidates() []string {
	var out []string
	if env := os.Getenv(EnvONNXLibrary); env != "" {
		out = append(out, env)
	}
	out = append(out, systemLibraryPaths()...)
	if root, err := findProjectRoot(); err == nil {
		if name, err := libraryName(); err == nil {
			out = append(out, filepath.Join(root, "onnxruntime", "lib", name))
		}
	}
	return out
}

// FindONNXLibrary returns the first existing runtime library path.
func FindONNXLibrary() (string, error) {
	candidates := LibraryCandidates()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ONNX Runtime library not found (tried %d locations, set %s)", len(candidates), EnvONNXLibrary)
}

// SetONNXLibraryPath points onnxruntime_go at the first library found.
func SetONNXLibraryPath() error {
	path, err := FindONNXLibrary()
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	return nil
}
