package project

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = ".project.lock"

// Lock guards a project directory against a second processing run. The
// core itself does no locking; this is for the caller wrapping a pipeline
// run around the project.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes a non-blocking exclusive lock on the project directory.
func AcquireLock(dir string) (*Lock, error) {
	fl := flock.New(filepath.Join(dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock for %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("project %s is locked by another run", dir)
	}
	return &Lock{fl: fl}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release project lock: %w", err)
	}
	return nil
}
