package pipe

// Debug sends a diagnostic one hop towards the caller: a caller logs it,
// a worker posts it to its owner and a hub to every connected party.
// It is best-effort and never fails.
func (p *Pipe) Debug(msg any) {
	if err, ok := msg.(error); ok {
		msg = err.Error()
	}
	p.incr(MetricDebugCount)

	if p.role == RoleCaller {
		p.logger.Info("debug", LabelDebug.L(msg))
		return
	}

	buf, err := p.codec.Marshal(debugEnvelope(msg))
	if err != nil {
		p.logger.Warn("dropped debug message", LabelDebug.L(msg), LabelError.L(err))
		return
	}
	if p.postUpstream(buf) == 0 {
		p.logger.Debug("debug message reached nobody", LabelDebug.L(msg))
	}
}

// relay forwards a diagnostic received from one of our endpoints.
func (p *Pipe) relay(msg any, from origin) {
	if p.role == RoleCaller {
		p.incr(MetricDebugCount)
		p.logger.Info("debug", LabelSource.L(from.name()), LabelDebug.L(msg))
		return
	}
	p.Debug(msg)
}
