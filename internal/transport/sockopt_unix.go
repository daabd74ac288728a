//go:build unix && !linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if iface != "" {
			return fmt.Errorf("binding to interface %q is only supported on linux", iface)
		}
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
