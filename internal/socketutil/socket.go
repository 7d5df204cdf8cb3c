// Package socketutil builds the raw, non-blocking listening sockets each
// worker accepts connections on, grounded on
// original_source/src/core/socket.{hpp,cpp}'s create_listening_socket.
package socketutil

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Backlog is the default listen backlog, matching the original's default
// argument to create_listening_socket.
const Backlog = 128

// ListenOptions configures CreateListeningSocket.
type ListenOptions struct {
	Address   string
	Port      uint16
	Backlog   int
	ReusePort bool
}

// CreateListeningSocket creates a non-blocking, SO_REUSEADDR TCP listening
// socket bound to opts.Address:opts.Port. When opts.ReusePort is set it also
// sets SO_REUSEPORT so every worker can bind the same port and let the
// kernel load-balance accepts across them (spec.md §4.2, §9 Open Question 1
// resolved by SPEC_FULL.md's explicit server.reuse_port flag).
//
// On any failure the partially-constructed socket is closed before
// returning, matching the original's close-on-any-failure discipline.
func CreateListeningSocket(opts ListenOptions) (fd int, err error) {
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = Backlog
	}

	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socketutil: socket: %w", err)
	}
	sock := fd
	defer func() {
		if err != nil {
			_ = unix.Close(sock)
		}
	}()

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return -1, fmt.Errorf("socketutil: setsockopt SO_REUSEADDR: %w", err)
	}

	if opts.ReusePort {
		if err = setReusePort(fd); err != nil {
			return -1, fmt.Errorf("socketutil: setsockopt SO_REUSEPORT: %w", err)
		}
	}

	ip := net.ParseIP(opts.Address)
	if ip == nil {
		return -1, fmt.Errorf("socketutil: invalid address %q", opts.Address)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return -1, fmt.Errorf("socketutil: only IPv4 addresses are supported, got %q", opts.Address)
	}

	addr := &unix.SockaddrInet4{Port: int(opts.Port)}
	copy(addr.Addr[:], ip4)

	if err = unix.Bind(fd, addr); err != nil {
		return -1, fmt.Errorf("socketutil: bind: %w", err)
	}

	if err = unix.Listen(fd, backlog); err != nil {
		return -1, fmt.Errorf("socketutil: listen: %w", err)
	}

	if err = SetNonblocking(fd); err != nil {
		return -1, err
	}

	return fd, nil
}

// SetNonblocking flips O_NONBLOCK on fd.
func SetNonblocking(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("socketutil: set nonblocking: %w", err)
	}
	return nil
}

// CloseFD closes fd, ignoring a negative (already-invalid) descriptor.
func CloseFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}

// Accept4Nonblocking accepts a connection from listenFD, returning a
// non-blocking, close-on-exec client descriptor. Returns syscall.EAGAIN when
// the listening socket has no pending connection, matching the edge-triggered
// accept-until-EAGAIN discipline in
// original_source/src/runtime/orchestrator.cpp's run_worker_thread.
func Accept4Nonblocking(listenFD int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, nil, syscall.EAGAIN
		}
		return -1, nil, err
	}
	return nfd, sa, nil
}
