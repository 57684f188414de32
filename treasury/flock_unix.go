//go:build unix

package treasury

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// acquireLock takes the treasury lock at path, waiting for other processes.
func acquireLock(path string) (*os.File, error) {
	return flockFile(path, syscall.LOCK_EX)
}

// tryLock takes the treasury lock at path or fails with ErrLockHeld.
func tryLock(path string) (*os.File, error) {
	return flockFile(path, syscall.LOCK_EX|syscall.LOCK_NB)
}

func flockFile(path string, how int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("treasury: open lock %s: %w", path, err)
	}
	for {
		err = syscall.Flock(int(f.Fd()), how)
		if !errors.Is(err, syscall.EINTR) {
			break
		}
	}
	if err == nil {
		return f, nil
	}
	_ = f.Close()
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, path)
	}
	return nil, fmt.Errorf("treasury: lock %s: %w", path, err)
}

// releaseLock unlocks and closes a lock file. A nil file is ignored.
func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}
