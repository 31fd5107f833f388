package config

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"cowfs/internal/common"
	"cowfs/internal/util"
)

// RootLock is an advisory lock on a storage root held for the duration of
// one command. It keeps two cowfs processes from mutating the same root.
type RootLock struct {
	lock *flock.Flock
}

// AcquireLock takes the root lock, polling for up to timeout while another
// process holds it. Returns ErrLocked if the lock could not be taken.
func AcquireLock(ctx context.Context, root string, timeout time.Duration) (*RootLock, error) {
	path := LockPath(root)
	lock, err := util.RetryWithResult(ctx, func() (*flock.Flock, error) {
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil {
			return nil, retry.Unrecoverable(fmt.Errorf("%w: lock %s: %v", common.ErrIO, path, err))
		}
		if !locked {
			log.Debugf("[Lock] %s is held by another process", path)
			return nil, fmt.Errorf("%w: %s is in use by another cowfs process", common.ErrLocked, root)
		}
		return fl, nil
	}, util.LockRetryOptions(ctx, timeout)...)
	if err != nil {
		return nil, err
	}
	return &RootLock{lock: lock}, nil
}

// Release unlocks the root.
func (l *RootLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
