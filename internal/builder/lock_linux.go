// SPDX-License-Identifier: MPL-2.0

//go:build linux

package builder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName is created inside the output directory. An orphaned lock file
// is harmless: the kernel drops the flock when the descriptor closes.
const lockFileName = ".sfxpack.lock"

// buildLock holds an exclusive flock on the output directory's lock file.
type buildLock struct {
	file *os.File
}

// acquireBuildLock blocks until no other build holds dir.
func acquireBuildLock(dir string) (*buildLock, error) {
	lockPath := filepath.Join(dir, lockFileName)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}

	return &buildLock{file: f}, nil
}

// Release unlocks and closes the lock file. Later calls are no-ops.
func (l *buildLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
