package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// TarballExtension is the suffix of cached archive files.
const TarballExtension = ".tgz"

// DiskCache stores downloaded package archives under a root directory,
// keyed by a hash of the tarball URL. Published tarballs are immutable, so
// entries never expire.
type DiskCache struct {
	rootDir string
}

// NewDiskCache creates the cache root if needed.
func NewDiskCache(rootDir string) (*DiskCache, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DiskCache{rootDir: rootDir}, nil
}

// Root returns the cache root directory.
func (dc *DiskCache) Root() string {
	return dc.rootDir
}

// ComputeHash returns the hex SHA-256 of value.
func ComputeHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Path returns the cache file for url: <root>/<h[0:2]>/<h>.tgz.
func (dc *DiskCache) Path(url string) string {
	h := ComputeHash(url)
	return filepath.Join(dc.rootDir, h[:2], h+TarballExtension)
}

// Get returns the cached bytes for url. A missing entry is (nil, false, nil).
func (dc *DiskCache) Get(url string) ([]byte, bool, error) {
	data, err := os.ReadFile(dc.Path(url))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	return data, true, nil
}

// Put writes data for url through a temp file and rename, so readers never
// observe a partial entry. Concurrent writers of the same url are safe.
func (dc *DiskCache) Put(url string, data []byte) error {
	target := dc.Path(url)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".new-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		// Windows refuses to replace an existing file; another writer won.
		if _, statErr := os.Stat(target); statErr == nil {
			return nil
		}
		return fmt.Errorf("move cache file: %w", err)
	}
	return nil
}

// Delete removes the entry for url.
func (dc *DiskCache) Delete(url string) error {
	err := os.Remove(dc.Path(url))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	return os.RemoveAll(dc.rootDir)
}
