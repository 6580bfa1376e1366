// Package runner implements the JobRunner a Scheduler delegates to
// (spec.md §4.F): dispatching a resolved Job by its Process kind, running
// Command jobs as real subprocesses in a scoped temporary directory, and
// recursively driving Dynamic jobs back through a scheduler.Scheduler.
// Grounded step-for-step on original_source/src/execution.rs's JobRunner,
// run_job, try_run_dynamic and run_dynamic.
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// WorkDir is a job's scratch directory: job attributes and resolved inputs
// are written into it before the command runs, and its "out/" subtree is
// scanned for outputs afterward. Named "job-<uuid>" for a greppable,
// collision-proof identifier, replacing the original's anonymous tempfile
// naming (spec.md §4.F, §5).
type WorkDir struct {
	root string
}

// NewWorkDir creates a fresh scratch directory under base.
func NewWorkDir(base string) (*WorkDir, error) {
	root := filepath.Join(base, "job-"+uuid.NewString())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("runner: workdir: %w", err)
	}
	return &WorkDir{root: root}, nil
}

// Create opens path (relative to the workdir root) for writing, creating
// any parent directories.
func (w *WorkDir) Create(path string) (io.WriteCloser, error) {
	full := filepath.Join(w.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

// CreateDir creates a subdirectory (relative to the workdir root).
func (w *WorkDir) CreateDir(path string) error {
	return os.MkdirAll(filepath.Join(w.root, path), 0o755)
}

// Path returns the absolute path of a workdir-relative path.
func (w *WorkDir) Path(path string) string {
	return filepath.Join(w.root, path)
}

// ScanFiles lists every regular file beneath a workdir-relative directory,
// in sorted order, as (path-relative-to-dir, absolute-path) pairs.
func (w *WorkDir) ScanFiles(dir string) ([][2]string, error) {
	base := w.Path(dir)
	var entries [][2]string
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		entries = append(entries, [2]string{filepath.ToSlash(rel), path})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i][0] < entries[j][0] })
	return entries, nil
}

// Release removes the workdir. Called after a successful run.
func (w *WorkDir) Release() error {
	return os.RemoveAll(w.root)
}

// Retain leaves the workdir on disk for inspection (a failed job) and
// returns its path.
func (w *WorkDir) Retain() string {
	return w.root
}
