package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
)

// Lockfile is an advisory exclusive lock guarding one state artifact for the
// load-diff-save window of an invocation.
type Lockfile struct {
	f *os.File
}

// LockPath returns the lock file guarding the state at statePath.
func LockPath(statePath string) string {
	return statePath + ".lock"
}

// Lock takes the lock without waiting. A lock held by another invocation
// results in model.ErrConcurrentInvocation.
func Lock(statePath string) (*Lockfile, error) {
	path := LockPath(statePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errLocked) {
			return nil, fmt.Errorf("%w: %s is locked", model.ErrConcurrentInvocation, path)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &Lockfile{f: f}, nil
}

// Unlock releases the lock. The lock file stays in place, removing it would
// race with an invocation which has just opened it.
func (l *Lockfile) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

var errLocked = errors.New("locked")
