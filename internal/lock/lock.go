// Package lock enforces single-instance execution with a PID file.
//
// Unlike a plain flock, the PID file survives the holder's death, so
// acquisition probes whether the recorded process is still alive and
// reclaims stale records. A live holder is a normal, expected outcome of
// single-instance enforcement, not an error condition worth a stack trace.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned when another live process holds the lock.
// Callers should exit with a distinct, non-crash status.
var ErrHeld = errors.New("lock held by a live process")

type Lock struct {
	path string
	pid  int
	held bool
}

func New(path string) *Lock {
	return &Lock{path: path, pid: os.Getpid()}
}

// HolderPID reports the PID recorded in the lock file, 0 if none.
func (l *Lock) HolderPID() (int, error) {
	b, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		// Unparseable content is treated as stale.
		return 0, nil
	}
	return pid, nil
}

// Acquire takes the lock, reclaiming it when the recorded holder is no
// longer alive. Returns ErrHeld (wrapped with the holder PID) when a live
// process owns it.
func (l *Lock) Acquire() error {
	if l.held {
		return nil
	}
	pid, err := l.HolderPID()
	if err != nil {
		return fmt.Errorf("read lock %s: %w", l.path, err)
	}
	if pid != 0 && pid != l.pid && processAlive(pid) {
		return fmt.Errorf("%w (pid %d)", ErrHeld, pid)
	}
	// Stale or unparseable record from a dead holder.
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale lock %s: %w", l.path, err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("lock dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		// Lost the race to another starting instance.
		return fmt.Errorf("%w (raced)", ErrHeld)
	}
	if err != nil {
		return fmt.Errorf("create lock %s: %w", l.path, err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", l.pid); err != nil {
		f.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return err
	}
	l.held = true
	return nil
}

// Release removes the lock file. Best-effort and idempotent: releasing an
// already-released lock is not an error, and a file someone else has since
// claimed is left alone.
func (l *Lock) Release() {
	if !l.held {
		return
	}
	l.held = false
	pid, err := l.HolderPID()
	if err == nil && pid != 0 && pid != l.pid {
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Nothing useful to do; the next starter will reclaim.
		_ = err
	}
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}
