// Package target defines the narrow collaborator interfaces a test run
// needs: an execution environment to run a bundle on, storage resolving
// bundle identifiers to paths, and scratch directories for run artifacts.
// None of them participate in the session core's concurrency design.
package target

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RunSpec describes one prepared test run.
type RunSpec struct {
	Mode        string
	BundlePath  string
	AppBundleID string
	TestsToRun  []string
	TestsToSkip []string
	Environment map[string]string
	Arguments   []string
	WorkDir     string
}

// Output receives a run's streamed output. Result is called once per
// structured result line; raw log output is written through io.Writer.
type Output interface {
	Result(line []byte)
	io.Writer
}

// Target is an execution environment handle. Run blocks until the run ends
// and returns its error; cancellation of the context is reported as an
// error wrapping ctx.Err().
type Target interface {
	Run(ctx context.Context, spec RunSpec, out Output) error
}

// BundleStorage resolves a stored bundle identifier to a location on disk.
type BundleStorage interface {
	PathForBundle(id string) (string, error)
}

// DirectoryStorage is bundle storage backed by a directory: each bundle
// lives in a subdirectory named by its identifier.
type DirectoryStorage struct {
	root string
}

// NewDirectoryStorage creates directory-backed bundle storage.
func NewDirectoryStorage(root string) *DirectoryStorage {
	return &DirectoryStorage{root: root}
}

// PathForBundle returns the path for a bundle identifier.
func (d *DirectoryStorage) PathForBundle(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid bundle id %q", id)
	}
	path := filepath.Join(d.root, id)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("bundle %q not stored: %w", id, err)
	}
	return path, nil
}

// TemporaryDirectory hands out per-run scratch directories under one root
// that is removed wholesale on shutdown. Run artifacts such as result
// bundles stay available for retrieval until then.
type TemporaryDirectory struct {
	root string
}

// NewTemporaryDirectory creates the scratch root under base, or the system
// temporary directory when base is empty.
func NewTemporaryDirectory(base string) (*TemporaryDirectory, error) {
	root, err := os.MkdirTemp(base, "xcompanion-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &TemporaryDirectory{root: root}, nil
}

// New creates a fresh scratch directory.
func (t *TemporaryDirectory) New(prefix string) (string, error) {
	dir, err := os.MkdirTemp(t.root, prefix)
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// Cleanup removes the scratch root and everything under it.
func (t *TemporaryDirectory) Cleanup() error {
	return os.RemoveAll(t.root)
}
