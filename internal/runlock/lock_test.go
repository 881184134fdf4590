package runlock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquire_BlocksConcurrentAcquire(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")

	lock, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = Acquire(lockPath)
	if err == nil {
		t.Fatal("expected second acquire to fail")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("error type = %T, want *HeldError", err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("held pid = %d, want %d", held.PID, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquire_TakesOverStaleLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")
	if err := os.Mkdir(lockPath, 0o755); err != nil {
		t.Fatalf("mkdir lock: %v", err)
	}
	// A pid far beyond the kernel's pid ceiling is never alive.
	stale := owner{PID: 1 << 30, CreatedAt: "2026-01-01T00:00:00Z", Hostname: "gone"}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal owner: %v", err)
	}
	if err := os.WriteFile(filepath.Join(lockPath, ownerFileName), data, 0o644); err != nil {
		t.Fatalf("write owner: %v", err)
	}

	lock, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("acquire over stale lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	current, err := readOwner(filepath.Join(lockPath, ownerFileName))
	if err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if current.PID != os.Getpid() {
		t.Errorf("owner pid = %d, want %d", current.PID, os.Getpid())
	}
}

func TestAcquire_TakesOverLockWithoutOwnerFile(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")
	if err := os.Mkdir(lockPath, 0o755); err != nil {
		t.Fatalf("mkdir lock: %v", err)
	}

	lock, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("acquire over ownerless lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRelease_Twice(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")
	lock, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second release = %v, want nil", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock dir should be gone, stat err = %v", err)
	}
}

func TestAcquire_EmptyPath(t *testing.T) {
	if _, err := Acquire("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
