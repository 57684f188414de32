//go:build windows

package treasury

import (
	"fmt"
	"os"
)

// Windows has no syscall.Flock. Calls stay serialized within one process by
// the treasury mutex; ErrLockHeld is never returned.

func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("treasury: open lock %s: %w", path, err)
	}
	return f, nil
}

func tryLock(path string) (*os.File, error) {
	return acquireLock(path)
}

func releaseLock(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
