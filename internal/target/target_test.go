package target

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirectoryStoragePathForBundle(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "com.example.tests"), 0755); err != nil {
		t.Fatalf("creating bundle dir: %v", err)
	}
	storage := NewDirectoryStorage(root)

	path, err := storage.PathForBundle("com.example.tests")
	if err != nil {
		t.Fatalf("PathForBundle returned unexpected error: %v", err)
	}
	if path != filepath.Join(root, "com.example.tests") {
		t.Errorf("path = %q, want under %q", path, root)
	}

	if _, err := storage.PathForBundle("com.example.missing"); err == nil {
		t.Error("PathForBundle with unknown id should return an error")
	}
}

func TestDirectoryStorageRejectsTraversal(t *testing.T) {
	storage := NewDirectoryStorage(t.TempDir())
	for _, id := range []string{"", ".", "..", "../etc", "a/b", `a\b`} {
		if _, err := storage.PathForBundle(id); err == nil {
			t.Errorf("PathForBundle(%q) should return an error", id)
		} else if !strings.Contains(err.Error(), "invalid bundle id") && !strings.Contains(err.Error(), "not stored") {
			t.Errorf("PathForBundle(%q) error = %v", id, err)
		}
	}
}

func TestTemporaryDirectory(t *testing.T) {
	tmp, err := NewTemporaryDirectory(t.TempDir())
	if err != nil {
		t.Fatalf("NewTemporaryDirectory returned unexpected error: %v", err)
	}

	dir1, err := tmp.New("run-")
	if err != nil {
		t.Fatalf("New returned unexpected error: %v", err)
	}
	dir2, err := tmp.New("run-")
	if err != nil {
		t.Fatalf("New returned unexpected error: %v", err)
	}
	if dir1 == dir2 {
		t.Errorf("New returned the same directory twice: %q", dir1)
	}

	if err := tmp.Cleanup(); err != nil {
		t.Fatalf("Cleanup returned unexpected error: %v", err)
	}
	if _, err := os.Stat(dir1); !os.IsNotExist(err) {
		t.Errorf("scratch dir %q survived Cleanup", dir1)
	}
}
