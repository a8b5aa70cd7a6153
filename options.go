package echobench

import (
	"github.com/behrlich/echobench/internal/constants"
	"github.com/behrlich/echobench/internal/logging"
)

// Options configures a server run. Zero values select the benchmark's
// documented defaults: epoll engine, port 9999, stdout reporting once per
// second, and the package default logger.
type Options struct {
	// Engine selects the I/O model. Defaults to EngineEpoll.
	Engine EngineName

	// Port is the TCP port to listen on. Defaults to constants.DefaultPort.
	Port int

	// Logger receives structured lifecycle logs. Defaults to logging.Default().
	Logger *logging.Logger

	// Reporter configures the periodic stdout status line. Defaults to
	// DefaultReporterConfig().
	Reporter *ReporterConfig

	// Observer receives per-event metrics callbacks. Defaults to a
	// MetricsObserver wrapping the server's own Metrics.
	Observer Observer
}

// withDefaults returns a copy of o with every zero-valued field except
// Observer replaced by its documented default. A nil Observer is left nil
// here; NewServer replaces it with a MetricsObserver on the server's Metrics.
func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = EngineEpoll
	}
	if o.Port == 0 {
		o.Port = constants.DefaultPort
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Reporter == nil {
		o.Reporter = DefaultReporterConfig()
	}
	return o
}
