package testing_util

import (
	"os"
	"path/filepath"
	"testing"
)

func MkdirTemp(t testing.TB, prefix string) (path string, cleanup func()) {
	out, err := os.MkdirTemp(os.TempDir(), prefix)
	if err != nil {
		t.Fatalf("failed to create temporary directory: %v", err)
	}

	if err := os.Chmod(out, 0o777); err != nil {
		t.Fatalf("failed to make temporary directory accessible: %s", err)
	}

	return out, func() {
		os.RemoveAll(out)
	}
}

// DBPath returns a not-yet-existing path inside a fresh temporary directory.
func DBPath(t testing.TB, prefix string) (path string, cleanup func()) {
	dir, cleanup := MkdirTemp(t, prefix)
	return filepath.Join(dir, "db"), cleanup
}
