package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Dispose removes an audio file once the pipeline is done with it, or moves
// it into archiveDir when keep is set. Missing files are not an error.
func Dispose(path string, keep bool, archiveDir string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if !keep {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	dst := filepath.Join(archiveDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	return nil
}
