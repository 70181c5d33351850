//go:build linux

package sys

import (
	"golang.org/x/sys/unix"
)

// PinToCore restricts the calling thread to coreID. The caller must hold the
// thread with runtime.LockOSThread for the affinity to stick.
func PinToCore(coreID int) error {
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(coreID)

	return unix.SchedSetaffinity(0, &mask)
}
