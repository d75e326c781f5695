package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Checkpoint persists the cursor across restarts. Without one the pipeline
// cold-starts at the current head and silently skips blocks produced while
// it was down; wiring a checkpoint opts into resume-from-last-height.
type Checkpoint interface {
	Load() (height int64, ok bool, err error)
	Save(height int64) error
}

type FileCheckpoint struct {
	path string
}

func NewFileCheckpoint(path string) (*FileCheckpoint, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &FileCheckpoint{path: path}, nil
}

func (c *FileCheckpoint) Load() (int64, bool, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, false, nil
	}
	h, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return h, true, nil
}

func (c *FileCheckpoint) Save(height int64) error {
	tmp := c.path + ".tmp"
	content := strconv.FormatInt(height, 10) + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
