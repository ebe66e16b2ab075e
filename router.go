package pipe

import (
	"github.com/raskyld/pipe/pkg/transport"
)

// origin is the channel an envelope came from, and where its response
// goes.
type origin interface {
	reply(buf []byte) error
	name() string
}

var (
	_ origin = (*Endpoint)(nil)
	_ origin = ownerOrigin{}
	_ origin = hubOrigin{}
)

func (ep *Endpoint) reply(buf []byte) error {
	return ep.send(buf)
}

func (ep *Endpoint) name() string {
	return ep.source
}

type ownerOrigin struct {
	scope *transport.DedicatedScope
}

func (o ownerOrigin) reply(buf []byte) error {
	return o.scope.PostMessage(buf)
}

func (o ownerOrigin) name() string {
	return "owner"
}

// hubOrigin answers every party of the hub, not only the one which asked.
type hubOrigin struct {
	hub  *transport.SharedScope
	port *transport.Port
}

func (o hubOrigin) reply(buf []byte) error {
	return o.hub.Broadcast(buf)
}

func (o hubOrigin) name() string {
	return o.port.ID()
}

// route handles one inbound envelope. It returns as soon as the envelope
// is dispatched; responders run on their own goroutine.
func (p *Pipe) route(buf []byte, from origin) {
	env, err := p.codec.Unmarshal(buf)
	if err != nil {
		p.incr(MetricEnvelopeMalformedCount, LabelSource.M(from.name()))
		p.logger.Debug("ignored malformed envelope", LabelSource.L(from.name()), LabelError.L(err))
		return
	}

	switch env.Kind {
	case KindResponse:
		p.settle(env, from)
	case KindRequest:
		p.serve(env, from)
	case KindDebug:
		p.relay(env.Debug, from)
	}
}

func (p *Pipe) settle(env Envelope, from origin) {
	if !p.pending.resolve(env.Resource, env.Results) {
		p.incr(MetricResponseStaleCount, LabelResource.M(env.Resource))
		p.logger.Debug(
			"discarded response without pending request",
			LabelResource.L(env.Resource),
			LabelSource.L(from.name()),
		)
		return
	}

	p.incr(MetricResponseCount, LabelResource.M(env.Resource))
	p.gaugePending()
	p.logger.Debug("request resolved", LabelResource.L(env.Resource), LabelSource.L(from.name()))
}

func (p *Pipe) serve(env Envelope, from origin) {
	if _, ok := p.handlers.lookup(env.Resource); !ok {
		p.incr(MetricHandlerMissingCount, LabelResource.M(env.Resource))
		p.Debug("no handler for " + env.Resource)
		return
	}

	p.incr(MetricDispatchCount, LabelResource.M(env.Resource))
	go func() {
		results, err := p.handlers.dispatch(p.ctx, env.Resource, env.Params)
		if err != nil {
			p.incr(MetricHandlerErrorCount, LabelResource.M(env.Resource))
			p.Debug(err.Error())
			return
		}

		buf, err := p.codec.Marshal(responseEnvelope(env.Resource, results))
		if err != nil {
			p.incr(MetricHandlerErrorCount, LabelResource.M(env.Resource))
			p.Debug(err.Error())
			return
		}

		if err := from.reply(buf); err != nil {
			p.logger.Warn(
				"failed to send response",
				LabelResource.L(env.Resource),
				LabelSource.L(from.name()),
				LabelError.L(err),
			)
		}
	}()
}
