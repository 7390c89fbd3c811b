package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// SkipUnlessFilesExist skips the test when any of paths is missing. Used by
// tests that need real model assets.
func SkipUnlessFilesExist(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if !fileExists(p) {
			t.Skipf("asset not available: %s", p)
		}
	}
}

// WriteLabelFile writes labels one per line into dir and returns the path.
func WriteLabelFile(t *testing.T, dir, name string, labels []string) string {
	t.Helper()
	require.NoError(t, EnsureDir(dir))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(labels, "\n")+"\n"), 0o600))
	return p
}
