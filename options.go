package pipe

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/pipe/pkg/transport"
)

type config struct {
	sources      []string
	overrides    map[string]Transport
	transport    *Transport
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	codec        Codec
}

// Option to pass to [New], [NewWorker] and [NewHub].
type Option func(*config) error

// WithSource adds the source locators of the endpoints this pipe talks to.
// Endpoints are created lazily, on the first request.
func WithSource(sources ...string) Option {
	return func(c *config) error {
		c.sources = append(c.sources, sources...)
		return nil
	}
}

// WithRuntime makes sources start as dedicated workers of rt, unless
// overridden.
func WithRuntime(rt *transport.Runtime) Option {
	return func(c *config) error {
		if rt == nil {
			return ErrNoRuntime
		}
		tr := Dedicated(rt)
		c.transport = &tr
		return nil
	}
}

// WithTransport sets the transport used for sources without override.
func WithTransport(tr Transport) Option {
	return func(c *config) error {
		if tr.Open == nil {
			return ErrNoRuntime
		}
		c.transport = &tr
		return nil
	}
}

// WithOverride forces the transport used for source, e.g. [Shared] to
// reach a fan-out hub instead of a private worker.
func WithOverride(source string, tr Transport) Option {
	return func(c *config) error {
		if tr.Open == nil {
			return ErrNoRuntime
		}
		if c.overrides == nil {
			c.overrides = make(map[string]Transport)
		}
		c.overrides[source] = tr
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use. A caller also uses it as
// the sink of debug messages.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// your `Pipe`.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the Pipe.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithCodec selects how envelopes are encoded. Both ends of a transport
// must agree on it.
func WithCodec(codec Codec) Option {
	return func(c *config) error {
		if codec == nil {
			codec = JSONCodec{}
		}
		c.codec = codec
		return nil
	}
}
