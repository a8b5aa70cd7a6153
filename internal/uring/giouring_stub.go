//go:build !(linux && giouring)
// +build !linux !giouring

// Stub backing for platforms or builds without real io_uring support. The
// completion and multishot engines are unavailable in this configuration;
// the epoll engine does not depend on this package.
package uring

import "fmt"

func newRing(config Config) (Ring, error) {
	return nil, fmt.Errorf("uring: not available; build with -tags giouring on linux")
}
