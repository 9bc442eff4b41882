// Package lockfile guards a conversion target so two runs never write the same output.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrAlreadyLocked indicates another run holds the lock for the same target.
	ErrAlreadyLocked = errors.New("lock already held")
)

type Lock struct {
	path string
	f    *os.File
}

// PathFor returns the lock file used for target. Locks live in dir (the OS temp dir when
// empty), never next to the output.
func PathFor(dir string, target string) string {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = filepath.Clean(target)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(dir, "brushport-"+hex.EncodeToString(sum[:8])+".lock")
}

func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	held, err := tryLock(f.Fd())
	if err != nil || !held {
		_ = f.Close()
		if err == nil {
			err = ErrAlreadyLocked
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// Best-effort: record the owner pid.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	return &Lock{path: path, f: f}, nil
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks and removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlock(l.f.Fd())
	closeErr := l.f.Close()
	l.f = nil
	rmErr := os.Remove(l.path)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	return multierr.Combine(unlockErr, closeErr, rmErr)
}
