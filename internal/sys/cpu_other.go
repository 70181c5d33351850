//go:build !linux

package sys

import "errors"

var ErrAffinityUnsupported = errors.New("cpu affinity is only supported on linux")

func PinToCore(coreID int) error {
	return ErrAffinityUnsupported
}
