//go:build !unix

package transport

import (
	"fmt"
	"syscall"
)

// Go enables SO_BROADCAST on udp4 sockets itself on these platforms.
func socketControl(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if iface != "" {
			return fmt.Errorf("binding to interface %q is not supported on this platform", iface)
		}
		return nil
	}
}
