//go:build !linux

package sys

import "errors"

var ErrMemoryLockUnsupported = errors.New("memory locking is only supported on linux")

func LockMemory() error {
	return ErrMemoryLockUnsupported
}
