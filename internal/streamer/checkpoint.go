package streamer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileCheckpoint stores the last synced block number as a single line of
// text. Saves go through a temporary file and a rename.
type FileCheckpoint struct {
	path string
}

// NewFileCheckpoint creates the parent directory of path if needed.
func NewFileCheckpoint(path string) (*FileCheckpoint, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("streamer: create checkpoint dir: %w", err)
		}
	}
	return &FileCheckpoint{path: path}, nil
}

// Load returns the stored block. ok is false when nothing was saved yet.
func (c *FileCheckpoint) Load() (block int64, ok bool, err error) {
	b, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("streamer: read checkpoint: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, false, nil
	}
	block, err = strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("streamer: parse checkpoint %q: %w", s, err)
	}
	return block, true, nil
}

// Save records block as the last synced block.
func (c *FileCheckpoint) Save(block int64) error {
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(block, 10)+"\n"), 0o644); err != nil {
		return fmt.Errorf("streamer: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("streamer: commit checkpoint: %w", err)
	}
	return nil
}
