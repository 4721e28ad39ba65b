package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/joshuadavidthomas/dashtext/internal/logger"
)

// Lock is the machine-wide exclusive update lock. The kernel drops it when
// the holding process exits, so a crash never leaves it stuck.
type Lock struct {
	file *flock.Flock
	once sync.Once
	err  error
}

// AcquireLock takes the lock at path without blocking.
// A lock held by anyone else yields ErrUpdateInProgress.
func AcquireLock(ctx context.Context, path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create lock directory: %w", ErrFilesystem, err)
	}

	file := flock.New(path)

	locked, err := file.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file %s: %w", ErrFilesystem, path, err)
	}

	if !locked {
		logPeerProcesses(ctx, ExecutableName())
		return nil, fmt.Errorf("%w (lock %s)", ErrUpdateInProgress, path)
	}

	logger.DebugKV(ctx, "Update lock acquired", "path", path)

	return &Lock{file: file}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.file.Path()
}

// Release drops the lock. Calling it again is a no-op.
func (l *Lock) Release() error {
	l.once.Do(func() {
		if err := l.file.Unlock(); err != nil {
			l.err = fmt.Errorf("%w: release lock: %w", ErrLock, err)
		}
	})

	return l.err
}
