package pipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/pipe/pkg/transport"
)

// Role selects how a [Pipe] reaches the party it answers to.
type Role uint8

const (
	// RoleCaller is the coordinating context. Debug messages end up in its
	// logger.
	RoleCaller Role = iota
	// RoleWorker runs inside a dedicated worker and answers its owner.
	RoleWorker
	// RoleHub runs inside a shared worker and answers every connected party
	// at once.
	RoleHub
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleHub:
		return "hub"
	default:
		return "caller"
	}
}

// Pipe issues named requests and answers them. Every role exposes the same
// operations: a worker can request from its owner as much as the owner
// requests from it.
type Pipe struct {
	id     string
	role   Role
	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label
	codec  Codec

	handlers  *handlerTable
	pending   *correlator
	endpoints *registry

	// upstream, set according to role.
	worker *transport.DedicatedScope
	hub    *transport.SharedScope

	// cancelled on Close, handed to responders.
	ctx    context.Context
	cancel context.CancelFunc

	lk     sync.Mutex
	closed bool
}

// New creates a caller.
func New(opts ...Option) (*Pipe, error) {
	return newPipe(RoleCaller, opts)
}

// NewWorker creates the pipe of a dedicated worker script. Requests from
// the owner are answered on the same channel.
func NewWorker(scope *transport.DedicatedScope, opts ...Option) (*Pipe, error) {
	if scope == nil {
		return nil, fmt.Errorf("%w: nil scope", ErrInvalidCfg)
	}
	p, err := newPipe(RoleWorker, opts)
	if err != nil {
		return nil, err
	}

	p.worker = scope
	p.logger = p.logger.With(LabelSource.L(scope.Source()))
	from := ownerOrigin{scope: scope}
	scope.OnMessage(func(buf []byte) {
		p.route(buf, from)
	})
	go p.closeWhenDone(scope.Done())
	return p, nil
}

// NewHub creates the pipe of a shared worker script. Responses are
// broadcast to every connected party, not only to the one which asked.
func NewHub(scope *transport.SharedScope, opts ...Option) (*Pipe, error) {
	if scope == nil {
		return nil, fmt.Errorf("%w: nil scope", ErrInvalidCfg)
	}
	p, err := newPipe(RoleHub, opts)
	if err != nil {
		return nil, err
	}

	p.hub = scope
	p.logger = p.logger.With(LabelSource.L(scope.Source()))
	scope.OnConnect(func(port *transport.Port) {
		from := hubOrigin{hub: scope, port: port}
		port.OnMessage(func(buf []byte) {
			p.route(buf, from)
		})
		p.logger.Debug("party connected", LabelPortID.L(port.ID()))
	})
	go p.closeWhenDone(scope.Done())
	return p, nil
}

// Attach creates the pipe matching the kind of scope a script was started
// with, so the same script can run as a dedicated or a shared worker.
func Attach(scope transport.Scope, opts ...Option) (*Pipe, error) {
	switch s := scope.(type) {
	case *transport.DedicatedScope:
		return NewWorker(s, opts...)
	case *transport.SharedScope:
		return NewHub(s, opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported scope %T", ErrInvalidCfg, scope)
	}
}

func newPipe(role Role, opts []Option) (*Pipe, error) {
	cfg := config{codec: JSONCodec{}}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	sources := dedupe(cfg.sources)
	if cfg.transport == nil {
		for _, source := range sources {
			if _, ok := cfg.overrides[source]; !ok {
				return nil, fmt.Errorf("%w: %w: %s", ErrInvalidCfg, ErrNoRuntime, source)
			}
		}
	}

	p := &Pipe{
		id:       uuid.NewString(),
		role:     role,
		codec:    cfg.codec,
		handlers: newHandlerTable(),
		pending:  newCorrelator(),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if cfg.logHandler != nil {
		p.logger = slog.New(cfg.logHandler)
	} else {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With(LabelPipeID.L(p.id), LabelRole.L(role.String()))

	if cfg.msink != nil {
		p.msink = cfg.msink
	} else {
		p.msink = metrics.Default()
	}
	p.labels = append(append([]metrics.Label{}, cfg.metricLabels...), LabelRole.M(role.String()))

	p.endpoints = &registry{
		sources:   sources,
		overrides: cfg.overrides,
		fallback:  cfg.transport,
		attach:    p.attachEndpoint,
		failed:    p.endpointFailed,
		gone:      p.endpointGone,
	}
	return p, nil
}

func (p *Pipe) ID() string {
	return p.id
}

func (p *Pipe) Role() Role {
	return p.role
}

// Request broadcasts a request for resource to every party this pipe
// talks to, creating the configured endpoints if needed, and returns a
// future resolved by the first response.
//
// Only one request per resource is tracked: requesting a resource again
// while a previous request is pending orphans the previous future, which
// then never resolves.
func (p *Pipe) Request(resource string, params any) (*Future, error) {
	if resource == "" {
		return nil, ErrResourceInvalid
	}
	if p.isClosed() {
		return nil, ErrPipeClosed
	}

	buf, err := p.codec.Marshal(requestEnvelope(resource, params))
	if err != nil {
		return nil, err
	}

	eps := p.endpoints.ensure()

	f, orphaned := p.pending.track(resource)
	p.incr(MetricRequestCount, LabelResource.M(resource))
	if orphaned != nil {
		p.incr(MetricRequestOrphanedCount, LabelResource.M(resource))
		p.logger.Warn(
			"pending request overwritten, its caller will never be answered",
			LabelResource.L(resource),
		)
	}
	p.gaugePending()

	sent := 0
	for _, ep := range eps {
		if err := ep.send(buf); err != nil {
			if errors.Is(err, transport.ErrChannelClosed) && p.endpoints.drop(ep) {
				p.endpointGone(ep)
			}
			p.endpointFailed(ep.source, err)
			continue
		}
		sent++
	}
	sent += p.postUpstream(buf)

	if sent == 0 {
		p.logger.Warn("request reached nobody, it stays pending", LabelResource.L(resource))
	}
	return f, nil
}

// postUpstream sends buf to the party this worker or hub answers to and
// returns how many channels accepted it.
func (p *Pipe) postUpstream(buf []byte) int {
	switch p.role {
	case RoleWorker:
		if err := p.worker.PostMessage(buf); err != nil {
			p.logger.Warn("failed to post to owner", LabelError.L(err))
			return 0
		}
		return 1
	case RoleHub:
		sent := 0
		for _, port := range p.hub.Ports() {
			if err := port.PostMessage(buf); err != nil {
				p.logger.Warn("failed to post to party", LabelPortID.L(port.ID()), LabelError.L(err))
				continue
			}
			sent++
		}
		return sent
	default:
		return 0
	}
}

// Handle registers responder for resource, replacing any previous one.
func (p *Pipe) Handle(resource string, responder Responder) {
	if p.handlers.register(resource, responder) {
		p.logger.Debug("responder replaced", LabelResource.L(resource))
	}
}

// HandleFunc registers a responder which cannot fail.
func (p *Pipe) HandleFunc(resource string, fn func(params any) any) {
	p.Handle(resource, func(_ context.Context, params any) (any, error) {
		return fn(params), nil
	})
}

// Resources lists the resources this pipe answers, starting with prefix.
func (p *Pipe) Resources(prefix string) []string {
	return p.handlers.resources(prefix)
}

// Pending reports how many requests are waiting for a response.
func (p *Pipe) Pending() int {
	return p.pending.len()
}

// Connect creates the configured endpoints now rather than on the first
// request.
func (p *Pipe) Connect() error {
	if p.isClosed() {
		return ErrPipeClosed
	}
	p.endpoints.ensure()
	return nil
}

// Endpoints describes the live endpoints.
func (p *Pipe) Endpoints() []EndpointInfo {
	eps := p.endpoints.snapshot()
	infos := make([]EndpointInfo, 0, len(eps))
	for _, ep := range eps {
		infos = append(infos, ep.info())
	}
	return infos
}

// Terminate closes every endpoint. The next request starts them again
// from the configuration.
func (p *Pipe) Terminate() error {
	err := p.endpoints.terminate()
	if err != nil {
		p.logger.Warn("errors while terminating endpoints", LabelError.L(err))
	}
	return err
}

// Close terminates the endpoints, cancels running responders and refuses
// new requests. A worker also closes its channel to the owner.
func (p *Pipe) Close() error {
	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return nil
	}
	p.closed = true
	p.lk.Unlock()

	p.cancel()
	err := p.Terminate()
	if p.worker != nil {
		err = errors.Join(err, p.worker.Close())
	}
	p.logger.Debug("pipe closed")
	return err
}

func (p *Pipe) isClosed() bool {
	p.lk.Lock()
	defer p.lk.Unlock()
	return p.closed
}

func (p *Pipe) closeWhenDone(done <-chan struct{}) {
	select {
	case <-done:
		_ = p.Close()
	case <-p.ctx.Done():
	}
}

func (p *Pipe) attachEndpoint(ep *Endpoint) {
	ep.start(
		func(buf []byte) { p.route(buf, ep) },
		func(err error) { p.endpointFailed(ep.source, err) },
	)
	p.incr(MetricEndpointOpenCount, LabelSource.M(ep.source), LabelVariant.M(ep.variant.String()))
	p.logger.Debug(
		"endpoint connected",
		LabelSource.L(ep.source),
		LabelVariant.L(ep.variant.String()),
	)
}

func (p *Pipe) endpointFailed(source string, err error) {
	p.incr(MetricEndpointErrorCount, LabelSource.M(source))
	p.Debug(fmt.Sprintf("endpoint error %s - %s", source, err))
}

func (p *Pipe) endpointGone(ep *Endpoint) {
	p.incr(MetricEndpointClosedCount, LabelSource.M(ep.source))
	p.logger.Debug(
		"endpoint closed by its peer, it will be rebuilt on next request",
		LabelSource.L(ep.source),
		LabelVariant.L(ep.variant.String()),
	)
}

func (p *Pipe) incr(key []string, labels ...metrics.Label) {
	p.msink.IncrCounterWithLabels(key, 1.0, append(labels, p.labels...))
}

func (p *Pipe) gaugePending() {
	p.msink.SetGaugeWithLabels(MetricRequestPending, float32(p.pending.len()), p.labels)
}
