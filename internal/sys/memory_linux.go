//go:build linux

package sys

import "golang.org/x/sys/unix"

// LockMemory pins current and future pages in RAM so the gateway and ban
// paths never page fault.
func LockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}
