// Package epoll implements the readiness engine: an edge-triggered epoll
// event loop that accepts connections until the accept call would block,
// registers each for read readiness, and on every readable event drains
// recv until EAGAIN, echoing each chunk back with a single send call.
package epoll

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/behrlich/echobench/internal/constants"
	"github.com/behrlich/echobench/internal/listener"
	"github.com/behrlich/echobench/internal/logging"
	"github.com/behrlich/echobench/internal/metrics"
	"github.com/behrlich/echobench/internal/shutdown"
)

// waitTimeoutMillis bounds epoll_wait so the reporter and shutdown flag are
// serviced even under an idle listener, mirroring the completion engines'
// 100ms completion-wait cadence.
const waitTimeoutMillis = int(constants.CompletionWaitTimeout / 1_000_000)

// conn holds the readiness engine's per-connection state: just the
// descriptor and a reusable receive buffer. No cursor is kept: each
// successful recv is handed to a single send call before the next recv is
// issued, and a short send is not retried.
type conn struct {
	fd  int
	buf []byte
}

// Config wires an Engine to its shared dependencies.
type Config struct {
	Logger   *logging.Logger
	Observer metrics.Observer
	Metrics  *metrics.Metrics
	Reporter *metrics.Reporter
	Shutdown *shutdown.Flag
}

// Engine is the edge-triggered readiness engine (spec §4.4).
type Engine struct {
	listenFD int
	epfd     int
	conns    map[int]*conn

	logger   *logging.Logger
	observer metrics.Observer
	metrics  *metrics.Metrics
	reporter *metrics.Reporter
	shutdown *shutdown.Flag
}

// New creates an epoll engine around an already-bound, already-listening
// non-blocking listenFD.
func New(listenFD int, cfg Config) (*Engine, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(listenFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFD, &ev); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl add listener: %w", err)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = metrics.NoOpObserver{}
	}

	return &Engine{
		listenFD: listenFD,
		epfd:     epfd,
		conns:    make(map[int]*conn),
		logger:   cfg.Logger,
		observer: observer,
		metrics:  cfg.Metrics,
		reporter: cfg.Reporter,
		shutdown: cfg.Shutdown,
	}, nil
}

// Close removes every registered connection, closes their descriptors, and
// closes the epoll instance itself. Safe to call after Run returns.
func (e *Engine) Close() error {
	for fd := range e.conns {
		unix.Close(fd)
	}
	e.conns = nil
	return unix.Close(e.epfd)
}

// Run blocks servicing the epoll loop until shutdown is requested.
func (e *Engine) Run() error {
	events := make([]unix.EpollEvent, 64)

	for {
		if e.shutdown.Requested() {
			return nil
		}

		n, err := unix.EpollWait(e.epfd, events, waitTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		if e.metrics != nil && e.reporter != nil {
			e.reporter.Report(e.metrics.Snapshot(), false)
		}

		if n == 0 {
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == e.listenFD {
				e.acceptLoop()
				continue
			}
			if events[i].Events&unix.EPOLLIN != 0 {
				e.drain(fd)
			}
		}

		if e.shutdown.Requested() {
			return nil
		}
	}
}

// acceptLoop accepts pending connections until accept would block, per
// §4.4: "accepts in a loop until the accept call would block."
func (e *Engine) acceptLoop() {
	for {
		fd, _, err := listener.Accept(e.listenFD)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			e.logf("accept error: %v", err)
			return
		}

		if err := listener.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			continue
		}
		if err := listener.SetNoDelay(fd); err != nil {
			unix.Close(fd)
			continue
		}

		ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
		if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			unix.Close(fd)
			continue
		}

		e.conns[fd] = &conn{fd: fd, buf: make([]byte, constants.RecvBufferSize)}
		e.observer.ObserveAccept()
	}
}

// drain reads from fd until it would block, echoing each successful read
// back with a single send call. A zero-length read or hard error tears the
// connection down per §4.4.
func (e *Engine) drain(fd int) {
	c, ok := e.conns[fd]
	if !ok {
		return
	}

	for {
		n, err := unix.Read(fd, c.buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			e.closeConn(c)
			return
		}
		if n == 0 {
			e.closeConn(c)
			return
		}

		// Short writes are not retried here: a deliberate simplification
		// preserved from the reference design (spec §4.4, §9).
		if _, err := unix.Write(fd, c.buf[:n]); err != nil {
			e.closeConn(c)
			return
		}

		e.observer.ObserveEcho(uint64(n))
	}
}

func (e *Engine) closeConn(c *conn) {
	unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	unix.Close(c.fd)
	delete(e.conns, c.fd)
	e.observer.ObserveClose()
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}
