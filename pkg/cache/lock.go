package cache

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the advisory lock taken inside a file cache directory.
const LockFileName = ".fetch.lock"

// ErrLocked is returned when another fetch run holds the cache lock.
var ErrLocked = errors.New("cache directory is locked by another fetch run")

// Lock is an advisory lock on a file cache directory.
type Lock struct {
	lock *flock.Flock
}

// TryLock acquires the lock for dir without blocking.
func TryLock(dir string) (*Lock, error) {
	l := flock.New(filepath.Join(dir, LockFileName))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return &Lock{lock: l}, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
