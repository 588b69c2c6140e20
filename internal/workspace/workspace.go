// Package workspace manages the per-run scratch directory under the OS temp
// dir. Bulk extraction and the vision engine write intermediate frame files
// here; nothing survives the run.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Workspace struct {
	Path string
}

func New() (*Workspace, error) {
	path := filepath.Join(os.TempDir(), "dash2gps-"+uuid.NewString())
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", path, err)
	}
	return &Workspace{Path: path}, nil
}

func (w *Workspace) Cleanup() {
	_ = os.RemoveAll(w.Path)
}
