package transport

var _ Channel = (*Worker)(nil)
var _ Scope = (*DedicatedScope)(nil)

// Worker is the owner's handle on a dedicated execution context.
// It is a point-to-point [Channel]: attaching a message listener starts
// delivery, no explicit [Port.Start] is required.
type Worker struct {
	*Port
	src string
}

// NewWorker starts a fresh copy of the script registered under src.
func NewWorker(rt *Runtime, src string) (*Worker, error) {
	script, err := rt.lookup(src)
	if err != nil {
		return nil, err
	}

	owner, inner := newPortPair(rt.bufferSize)
	owner.autoStart = true

	owner.whenClosed(func() { _ = inner.Close() })

	w := &Worker{Port: owner, src: src}
	scope := &DedicatedScope{Port: inner, src: src}

	go func() {
		rt.run(src, script, scope, owner.fail)
		// Like any script evaluation, listeners only fire once it returned.
		inner.Start()
	}()
	return w, nil
}

// Source is the locator the worker was started from.
func (w *Worker) Source() string {
	return w.src
}

// Terminate stops the worker. Its scope observes the closure through
// [DedicatedScope.Done].
func (w *Worker) Terminate() error {
	return w.Close()
}

// DedicatedScope is the worker side of a point-to-point channel: messages
// posted here reach the single owner.
type DedicatedScope struct {
	*Port
	src string
}

func (s *DedicatedScope) Source() string {
	return s.src
}
