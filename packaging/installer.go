// Package packaging materializes npm package archives into a flat install
// root (node_modules).
//
// An Installer fetches a version's gzip-compressed tarball, verifies it
// against the manifest's dist metadata and extracts it below root/<name>.
// Installs are idempotent: a package directory that already holds the
// declared number of files, or a package.json marker when no count is
// declared, is left untouched without any network traffic. Existing files
// are never overwritten.
package packaging

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/willibrandon/gonpm/core"
	"github.com/willibrandon/gonpm/observability"
	"github.com/willibrandon/gonpm/registry"
)

// ArchiveFetcher returns the archive bytes dist points at, verified against
// the integrity dist declares. *registry.Client implements it with its
// single-flight archive store.
type ArchiveFetcher interface {
	FetchArchiveBytes(ctx context.Context, dist registry.Dist) ([]byte, error)
}

// InstallResult describes one Install call.
type InstallResult struct {
	Name string
	Path string

	// Skipped is true when the package was already installed.
	Skipped bool

	FilesWritten int
	FilesSkipped int
	ArchiveBytes int
	Duration     time.Duration
}

// Installer extracts archives into an install root.
type Installer struct {
	paths       *PathResolver
	fetcher     ArchiveFetcher
	logger      observability.Logger
	verify      bool
	locks       bool
	lockTimeout time.Duration
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(i *Installer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIntegrityCheck toggles verification of archive bytes against
// dist.integrity / dist.shasum. On by default. When off, the fetcher is
// handed a dist without digests.
func WithIntegrityCheck(enabled bool) Option {
	return func(i *Installer) {
		i.verify = enabled
	}
}

// WithFileLocks toggles per-package lock files that serialize installs
// of the same package across processes. On by default.
func WithFileLocks(enabled bool) Option {
	return func(i *Installer) {
		i.locks = enabled
	}
}

// WithLockTimeout bounds the wait for a package lock.
func WithLockTimeout(d time.Duration) Option {
	return func(i *Installer) {
		i.lockTimeout = d
	}
}

// NewInstaller creates an installer writing below root.
func NewInstaller(root string, fetcher ArchiveFetcher, opts ...Option) *Installer {
	i := &Installer{
		paths:       NewPathResolver(root),
		fetcher:     fetcher,
		logger:      observability.NewNullLogger(),
		verify:      true,
		locks:       true,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Root returns the install root.
func (i *Installer) Root() string {
	return i.paths.Root()
}

// Installed reports whether name is already materialized: with a declared
// file count the package directory must hold exactly that many regular
// files, otherwise its package.json must exist.
func (i *Installer) Installed(name string, dist registry.Dist) bool {
	dir := i.paths.InstallPath(name)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	if dist.FileCount != nil {
		n, err := CountFiles(dir)
		return err == nil && n == *dist.FileCount
	}
	_, err := os.Stat(i.paths.ManifestPath(name))
	return err == nil
}

// Install materializes the archive described by dist as root/name.
func (i *Installer) Install(ctx context.Context, name string, dist registry.Dist) (*InstallResult, error) {
	fileCount := -1
	if dist.FileCount != nil {
		fileCount = *dist.FileCount
	}
	ctx, span := observability.StartArchiveInstallSpan(ctx, name, fileCount)

	start := time.Now()
	result, err := i.install(ctx, name, dist)
	observability.EndSpanWithError(span, err)
	observability.PackageInstallDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		observability.PackageInstallsTotal.WithLabelValues("failed").Inc()
		return nil, err
	case result.Skipped:
		observability.PackageInstallsTotal.WithLabelValues("skipped").Inc()
	default:
		observability.PackageInstallsTotal.WithLabelValues("extracted").Inc()
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (i *Installer) install(ctx context.Context, name string, dist registry.Dist) (*InstallResult, error) {
	if err := ValidatePackageName(name); err != nil {
		return nil, core.ExtractionError(name, "", "refusing to install", err)
	}
	result := &InstallResult{Name: name, Path: i.paths.InstallPath(name)}

	if i.Installed(name, dist) {
		i.logger.VerboseContext(ctx, "{Package} already installed at {Path}", name, result.Path)
		result.Skipped = true
		return result, nil
	}

	if i.locks {
		unlock, err := acquireFileLock(ctx, i.paths.LockPath(name), i.lockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, core.ExtractionError(name, i.paths.LockPath(name), "lock package directory", err)
		}
		defer unlock()

		// Another process may have finished while we waited.
		if i.Installed(name, dist) {
			result.Skipped = true
			return result, nil
		}
	}

	want := dist
	if !i.verify {
		want = registry.Dist{Tarball: dist.Tarball}
	}
	data, err := i.fetcher.FetchArchiveBytes(ctx, want)
	if err != nil {
		return nil, core.Annotate(err, core.DependencyRequest{Name: name}, "")
	}
	result.ArchiveBytes = len(data)

	if err := i.extract(ctx, name, data, result); err != nil {
		return nil, err
	}
	i.logger.DebugContext(ctx, "Extracted {Package}: {Written} files written, {Existing} already present",
		name, result.FilesWritten, result.FilesSkipped)
	return result, nil
}

// extract writes every entry of the gzip-compressed tarball data. Any
// entry failure is fatal for the package.
func (i *Installer) extract(ctx context.Context, name string, data []byte, result *InstallResult) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return core.ExtractionError(name, "", "archive is not gzip-compressed", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return core.ExtractionError(name, "", "read archive", err)
		}

		target, err := i.paths.EntryPath(name, hdr.Name)
		if err != nil {
			return core.ExtractionError(name, hdr.Name, "unsafe archive entry", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, DirMode); err != nil {
				return core.ExtractionError(name, target, "create directory", err)
			}
		case tar.TypeReg:
			wrote, err := CopyToFile(tr, target, fileModeFor(hdr.FileInfo().Mode()))
			if err != nil {
				return core.ExtractionError(name, target, "write file", err)
			}
			if wrote {
				result.FilesWritten++
			} else {
				result.FilesSkipped++
			}
		default:
			// Links, devices and pax metadata are not materialized.
			i.logger.VerboseContext(ctx, "Skipping {Package} entry {Entry} of type {Type}",
				name, hdr.Name, string(hdr.Typeflag))
		}
	}
}
