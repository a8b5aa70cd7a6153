// Package listener sets up the IPv4 TCP accept socket shared by all three
// engines: bind with SO_REUSEADDR/SO_REUSEPORT, a fixed listen backlog, and
// TCP_NODELAY applied to each accepted connection.
package listener

import (
	"golang.org/x/sys/unix"

	"github.com/behrlich/echobench/internal/constants"
)

// Listen creates and binds a non-blocking IPv4 TCP listening socket on port,
// with SO_REUSEADDR and SO_REUSEPORT set and a backlog of constants.ListenBacklog.
// The caller owns the returned file descriptor and must close it.
func Listen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Listen(fd, constants.ListenBacklog); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// SetNoDelay disables Nagle's algorithm on fd, as required for every
// accepted connection regardless of engine.
func SetNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// SetNonblock puts fd into non-blocking mode, used by the readiness engine
// for each accepted connection (Listen already makes the listening socket
// non-blocking).
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// Accept accepts a single pending connection from the non-blocking listening
// socket fd. It returns the bare unix.EAGAIN errno (not wrapped) when no
// connection is pending.
func Accept(fd int) (int, unix.Sockaddr, error) {
	return unix.Accept(fd)
}

// Close closes fd and returns the close(2) error unchanged.
func Close(fd int) error {
	return unix.Close(fd)
}
