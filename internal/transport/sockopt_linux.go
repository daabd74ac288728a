//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl enables SO_BROADCAST and, when iface is set, pins the
// socket to that interface so DISCOVER leaves on the right link.
func socketControl(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			if opErr != nil || iface == "" {
				return
			}
			opErr = unix.BindToDevice(int(fd), iface)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
