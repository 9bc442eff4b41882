//go:build windows

package lockfile

import (
	"errors"

	"golang.org/x/sys/windows"
)

// lockSpan is the number of bytes locked from offset 0.
const lockSpan = 1

// tryLock takes a non-blocking exclusive range lock on fd. held is false when another
// handle owns the lock.
func tryLock(fd uintptr) (held bool, err error) {
	var ol windows.Overlapped
	const flags = windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY
	switch err := windows.LockFileEx(windows.Handle(fd), flags, 0, lockSpan, 0, &ol); {
	case err == nil:
		return true, nil
	case errors.Is(err, windows.ERROR_LOCK_VIOLATION), errors.Is(err, windows.ERROR_SHARING_VIOLATION):
		return false, nil
	default:
		return false, err
	}
}

func unlock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd), 0, lockSpan, 0, &ol)
}
