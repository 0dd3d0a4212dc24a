package status

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteSnapshot replaces the file at path with one line per task report.
// The file is written next to its destination and renamed into place so a
// reader never observes a half-written snapshot.
func WriteSnapshot(path string, reports []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("could not create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	var sb strings.Builder
	for _, r := range reports {
		sb.WriteString(r)
		sb.WriteString("\n")
	}
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not replace snapshot: %w", err)
	}
	return nil
}
