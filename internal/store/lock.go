package store

import (
	"path/filepath"

	"github.com/gofrs/flock"

	cserrors "github.com/codescope/codescope/internal/errors"
)

const lockFileName = ".codescope.lock"

// Lock guards the persistence directory against concurrent indexers
// from other processes.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the directory lock without blocking. A held lock
// surfaces as an explicit error so the caller can report the conflict.
func AcquireLock(dir string) (*Lock, error) {
	fl := flock.New(filepath.Join(dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, cserrors.StorageError("cannot acquire index lock", err)
	}
	if !ok {
		return nil, cserrors.New(cserrors.ErrCodeIndexLockHeld,
			"index is locked by another process", nil).
			WithDetail("lockFile", fl.Path()).
			WithSuggestion("wait for the other codescope run to finish")
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
