package migrate

import (
	"fmt"
	"os"
	"path/filepath"
)

// Transform maps the contents of a file to its new contents. changed is false
// when the file should be left alone.
type Transform func(data []byte) (out []byte, changed bool, err error)

// rewriteFile applies fn to the file at path and replaces the file when fn
// reports a change. The new contents are written to a temporary file in the
// same directory and renamed over the original. In dry-run mode nothing is
// written.
func (m *Migrator) rewriteFile(path string, fn Transform) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out, changed, err := fn(data)
	if err != nil || !changed {
		return false, err
	}
	if m.cfg.DryRun {
		return true, nil
	}

	if m.backup != nil {
		if err := m.backup.Record(path, data, info.Mode()); err != nil {
			return false, fmt.Errorf("failed to back up %s: %w", path, err)
		}
	}

	if err := writeFileAtomic(path, out, info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
