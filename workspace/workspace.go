// Package workspace allocates the per-run output directories that jobs and
// batches write into. Every run owns {root}/{id}/ exclusively.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	ImagesDir = "images"

	maxAllocAttempts = 8
)

// Workspace is the directory tree owned by one job or batch run.
type Workspace struct {
	ID        string
	Root      string
	ImagesDir string
}

type Allocator struct {
	root string
	ids  *IDGenerator
}

func NewAllocator(root string, ids *IDGenerator) (*Allocator, error) {
	if ids == nil {
		ids = NewIDGenerator()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}
	return &Allocator{root: root, ids: ids}, nil
}

func (a *Allocator) Root() string { return a.root }

// Allocate creates a fresh workspace. The run directory is created with an
// exclusive Mkdir, so two concurrent callers can never be handed the same
// root even if their IDs collide.
func (a *Allocator) Allocate(kind Kind) (Workspace, error) {
	for i := 0; i < maxAllocAttempts; i++ {
		id := a.ids.New(kind)
		dir := filepath.Join(a.root, id)

		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, os.ErrExist) {
			slog.Debug("workspace id collision, retrying", "id", id)
			continue
		}
		if err != nil {
			return Workspace{}, fmt.Errorf("could not create workspace %s: %w", id, err)
		}
		return a.ensure(id)
	}
	return Workspace{}, fmt.Errorf("could not allocate a unique %s workspace after %d attempts", kind, maxAllocAttempts)
}

// Open re-ensures the directories of an existing workspace. It never removes
// or truncates anything that is already there.
func (a *Allocator) Open(id string) (Workspace, error) {
	if err := validID(id); err != nil {
		return Workspace{}, err
	}
	if err := os.MkdirAll(filepath.Join(a.root, id), 0o755); err != nil {
		return Workspace{}, fmt.Errorf("could not create workspace %s: %w", id, err)
	}
	return a.ensure(id)
}

func (a *Allocator) ensure(id string) (Workspace, error) {
	ws := Workspace{
		ID:        id,
		Root:      filepath.Join(a.root, id),
		ImagesDir: filepath.Join(a.root, id, ImagesDir),
	}
	if err := os.MkdirAll(ws.ImagesDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("could not create images directory for %s: %w", id, err)
	}
	return ws, nil
}

// Resolve returns the path of a file stored directly in a workspace root.
func (a *Allocator) Resolve(id, filename string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	// Security: Prevent path traversal
	clean := filepath.Base(filename)
	if clean != filename || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid filename")
	}

	fullPath := filepath.Join(a.root, id, clean)
	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("file not found")
	}
	return fullPath, nil
}

// IDOf returns the ID of the workspace containing path.
func (a *Allocator) IDOf(path string) (string, bool) {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return "", false
	}
	id, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if validID(id) != nil {
		return "", false
	}
	return id, true
}

// Sweep removes workspaces last modified more than lifetime ago and returns
// how many were deleted. Workspaces for which keep reports true are left
// alone regardless of age; keep may be nil.
func (a *Allocator) Sweep(lifetime time.Duration, keep func(id string) bool) (int, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-lifetime)
	removed := 0

	for _, e := range entries {
		if !e.IsDir() || validID(e.Name()) != nil {
			continue
		}
		if keep != nil && keep(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.root, e.Name())); err != nil {
			slog.Warn("failed to remove workspace", "id", e.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("cleaned up old workspaces", "count", removed)
	}
	return removed, nil
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid task id %q", id)
	}
	for _, k := range []Kind{KindTask, KindBatch, KindUpload} {
		if strings.HasPrefix(id, string(k)+"_") {
			return nil
		}
	}
	return fmt.Errorf("invalid task id %q", id)
}
