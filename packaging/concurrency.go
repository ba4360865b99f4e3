package packaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultLockTimeout is the maximum time to wait for a package lock
	DefaultLockTimeout = 2 * time.Minute

	// LockRetryDelay is the delay between lock attempts
	LockRetryDelay = 50 * time.Millisecond

	// LockFileExtension is the lock file extension
	LockFileExtension = ".lock"
)

// FileLock is an exclusive lock held on a lock file. It keeps two gonpm
// processes from extracting the same package into one install root.
type FileLock struct {
	lockFilePath string
	lockFile     *os.File
}

// acquireFileLock takes the lock at lockPath+".lock", retrying until ctx
// ends or timeout elapses. The returned unlock must be called.
func acquireFileLock(ctx context.Context, lockPath string, timeout time.Duration) (unlock func(), err error) {
	lockFilePath := lockPath + LockFileExtension
	if err := os.MkdirAll(filepath.Dir(lockFilePath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	deadline := time.Now().Add(timeout)
	for {
		lock, err := tryAcquireLock(lockFilePath)
		if err == nil {
			return func() { releaseLock(lock) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}

		timer := time.NewTimer(LockRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock acquisition cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
