package worker

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sockaddrToIPPort extracts a dotted-quad IP and port from an accepted
// connection's peer address, matching the inet_ntop/ntohs pair in
// original_source/src/runtime/orchestrator.cpp's accept loop.
func sockaddrToIPPort(sa unix.Sockaddr) (ip string, port int) {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", 0
	}
	a := in4.Addr
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3]), in4.Port
}
