package packaging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// FileMode is the permission of extracted files
	FileMode os.FileMode = 0o644

	// ExecutableFileMode is used when the archive marks a file executable
	ExecutableFileMode os.FileMode = 0o755

	// DirMode is the permission of created directories
	DirMode os.FileMode = 0o755
)

// fileModeFor maps a tar header mode to the mode extracted files get.
func fileModeFor(mode fs.FileMode) os.FileMode {
	if mode&0o111 != 0 {
		return ExecutableFileMode
	}
	return FileMode
}

// CopyToFile writes stream to path, creating parent directories. An
// existing file is never overwritten: CopyToFile reports false and leaves
// it alone. A failed copy removes the partial file so a later run writes
// it again.
func CopyToFile(stream io.Reader, path string, mode os.FileMode) (bool, error) {
	if _, err := os.Lstat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(file, stream); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("copy stream: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("close file: %w", err)
	}
	return true, nil
}

// CountFiles returns the number of regular files below dir.
func CountFiles(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n, err
}
