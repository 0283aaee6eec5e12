package imagedup

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the run-scoped temporary storage of one deduplication run:
// a private 0700 root holding the extraction directory and the staging
// directory for accepted files. One run allocates it, uses it, and releases
// it on every exit path; nothing outlives the run.
type Workspace struct {
	root       string
	ExtractDir string
	UniqueDir  string
}

// NewWorkspace allocates a fresh workspace under the system temp directory.
func NewWorkspace() (*Workspace, error) {
	root, err := os.MkdirTemp("", "imagedup-")
	if err != nil {
		return nil, fmt.Errorf("allocating workspace: %w", err)
	}
	// MkdirTemp already uses 0700, but the umask may have widened it.
	if err := os.Chmod(root, 0o700); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("restricting workspace: %w", err)
	}

	ws := &Workspace{
		root:       root,
		ExtractDir: filepath.Join(root, "extract"),
		UniqueDir:  filepath.Join(root, "unique"),
	}
	for _, dir := range []string{ws.ExtractDir, ws.UniqueDir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("allocating workspace: %w", err)
		}
	}
	return ws, nil
}

// Close removes the workspace and everything in it. Safe to call more than
// once.
func (w *Workspace) Close() error {
	if w.root == "" {
		return nil
	}
	err := os.RemoveAll(w.root)
	w.root = ""
	return err
}
