package echobench

import (
	"fmt"

	"github.com/behrlich/echobench/internal/engine/completion"
	"github.com/behrlich/echobench/internal/engine/epoll"
	"github.com/behrlich/echobench/internal/engine/multishot"
	"github.com/behrlich/echobench/internal/listener"
	"github.com/behrlich/echobench/internal/logging"
	"github.com/behrlich/echobench/internal/shutdown"
)

// Server owns one bound listening socket, the engine selected by Options,
// and the metrics/reporter pair both report into. It is the root package's
// entry point: internal/engine/* never import this package, avoiding the
// import cycle that would otherwise come from wiring their Observer back
// into the types this package exposes.
type Server struct {
	opts     Options
	listenFD int
	engine   Engine
	metrics  *Metrics
	reporter *Reporter
	shutdown *shutdown.Flag
}

// NewServer binds the configured port and constructs the selected engine.
// The listening socket is created here, once, and handed to whichever
// engine Options.Engine selects; Close releases it regardless of whether
// Run was ever called.
func NewServer(opts Options) (*Server, error) {
	opts = opts.withDefaults()

	fd, err := listener.Listen(opts.Port)
	if err != nil {
		return nil, WrapError("listen", err)
	}

	m := NewMetrics()
	reporter := NewReporter(opts.Reporter)
	flag := shutdown.New()

	observer := opts.Observer
	if observer == nil {
		observer = NewMetricsObserver(m)
	}

	var eng Engine
	switch opts.Engine {
	case EngineEpoll:
		eng, err = epoll.New(fd, epoll.Config{
			Logger:   opts.Logger,
			Observer: observer,
			Metrics:  m,
			Reporter: reporter,
			Shutdown: flag,
		})
	case EngineURing:
		eng, err = completion.New(fd, completion.Config{
			Logger:   opts.Logger,
			Observer: observer,
			Metrics:  m,
			Reporter: reporter,
			Shutdown: flag,
		})
	case EngineMultishot:
		eng, err = multishot.New(fd, multishot.Config{
			Logger:   opts.Logger,
			Observer: observer,
			Metrics:  m,
			Reporter: reporter,
			Shutdown: flag,
		})
	default:
		listener.Close(fd)
		return nil, NewError("new_server", ErrCodeInvalidFlag, fmt.Sprintf("unknown engine %q", opts.Engine))
	}
	if err != nil {
		listener.Close(fd)
		return nil, WrapError("new_engine", err)
	}

	return &Server{
		opts:     opts,
		listenFD: fd,
		engine:   eng,
		metrics:  m,
		reporter: reporter,
		shutdown: flag,
	}, nil
}

// Run blocks running the selected engine's event loop until shutdown is
// requested via Shutdown() or a signal delivered through Watch.
func (s *Server) Run() error {
	return s.engine.Run()
}

// Shutdown requests a clean shutdown at the engine's next loop boundary.
func (s *Server) Shutdown() {
	s.shutdown.Request()
}

// Watch installs SIGINT/SIGTERM handlers that call Shutdown, returning a
// stop function that removes them.
func (s *Server) Watch() (stop func()) {
	return shutdown.Watch(s.shutdown)
}

// Close tears down the engine's kernel resources and, on shutdown, prints
// the final forced status line per the stdout contract (§6).
func (s *Server) Close() error {
	s.reporter.Finish(s.metrics.Snapshot())
	engineErr := s.engine.Close()
	listenErr := listener.Close(s.listenFD)
	if engineErr != nil {
		return WrapError("close_engine", engineErr)
	}
	if listenErr != nil {
		return WrapError("close_listener", listenErr)
	}
	return nil
}

// Metrics returns the server's metrics instance.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the server's metrics.
func (s *Server) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	return s.opts.Port
}

// EngineName returns the active engine name.
func (s *Server) EngineName() EngineName {
	return s.opts.Engine
}
