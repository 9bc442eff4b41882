//go:build !windows

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// tryLock takes a non-blocking exclusive flock on fd. held is false when another
// descriptor owns the lock.
func tryLock(fd uintptr) (held bool, err error) {
	if flags, err := unix.FcntlInt(fd, unix.F_GETFD, 0); err == nil {
		_, _ = unix.FcntlInt(fd, unix.F_SETFD, flags|unix.FD_CLOEXEC)
	}
	switch err := unix.Flock(int(fd), unix.LOCK_EX|unix.LOCK_NB); {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EAGAIN):
		return false, nil
	default:
		return false, err
	}
}

func unlock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}
