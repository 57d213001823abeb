//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func disableChecksum(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_NO_CHECK, 1); err != nil {
		return fmt.Errorf("failed to set SO_NO_CHECK: %w", err)
	}
	return nil
}
