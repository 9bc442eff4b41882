package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	path := PathFor(t.TempDir(), "/out/Soft Round")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if l.Path() != path {
		t.Fatalf("Path=%q, want %q", l.Path(), path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if pid, _ := strconv.Atoi(strings.TrimSpace(string(b))); pid != os.Getpid() {
		t.Fatalf("lock records pid %q, want %d", b, os.Getpid())
	}

	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("second Acquire err=%v, want ErrAlreadyLocked", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still present after Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	_ = again.Release()
}

func TestPathFor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := PathFor(dir, "/out/a")
	if filepath.Dir(a) != dir {
		t.Fatalf("lock %s not in %s", a, dir)
	}
	if a != PathFor(dir, "/out/../out/a") {
		t.Fatalf("equivalent targets must share a lock")
	}
	if a == PathFor(dir, "/out/b") {
		t.Fatalf("distinct targets must not share a lock")
	}
	if got := PathFor("", "/out/a"); filepath.Dir(got) != filepath.Clean(os.TempDir()) {
		t.Fatalf("default lock dir=%s", filepath.Dir(got))
	}
}

func TestAcquire_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Acquire(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
