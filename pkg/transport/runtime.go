package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Scope is what a running [Script] sees of its own execution context.
type Scope interface {
	// Source is the locator the script was loaded from.
	Source() string
	// Done is closed when the context is torn down.
	Done() <-chan struct{}
}

// Script is the entry point of an execution context. It typically
// installs message listeners on its scope and returns; the context stays
// alive until it is torn down.
type Script func(scope Scope)

// Runtime owns the scripts that can be started as workers, and the shared
// hubs running them.
type Runtime struct {
	logger     *slog.Logger
	bufferSize uint

	lk      sync.Mutex
	scripts map[string]Script
	hubs    map[string]*SharedScope
	closed  bool
}

// RuntimeOption to pass to [NewRuntime].
type RuntimeOption func(*Runtime)

// WithRuntimeLog specifies which `slog.Handler` to use.
func WithRuntimeLog(handler slog.Handler) RuntimeOption {
	return func(rt *Runtime) {
		if handler != nil {
			rt.logger = slog.New(handler)
		}
	}
}

// WithBufferSize controls how many frames a channel buffers per direction.
func WithBufferSize(size uint) RuntimeOption {
	return func(rt *Runtime) {
		if size == 0 {
			size = DefaultBufferSize
		}
		rt.bufferSize = size
	}
}

func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		logger:     slog.Default(),
		bufferSize: DefaultBufferSize,
		scripts:    make(map[string]Script),
		hubs:       make(map[string]*SharedScope),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Register makes script loadable under src, replacing any previous one.
// Hubs already running keep their script.
func (rt *Runtime) Register(src string, script Script) {
	rt.lk.Lock()
	defer rt.lk.Unlock()
	rt.scripts[src] = script
}

func (rt *Runtime) lookup(src string) (Script, error) {
	rt.lk.Lock()
	defer rt.lk.Unlock()
	if rt.closed {
		return nil, ErrRuntimeClosed
	}
	script, ok := rt.scripts[src]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, src)
	}
	return script, nil
}

// Shutdown tears down every shared hub. Dedicated workers belong to whoever
// created them.
func (rt *Runtime) Shutdown() error {
	rt.lk.Lock()
	if rt.closed {
		rt.lk.Unlock()
		return nil
	}
	rt.closed = true
	hubs := rt.hubs
	rt.hubs = make(map[string]*SharedScope)
	rt.lk.Unlock()

	var errs []error
	for _, hub := range hubs {
		errs = append(errs, hub.close())
	}
	return errors.Join(errs...)
}

// run executes script and turns a panic into an error for report.
func (rt *Runtime) run(src string, script Script, scope Scope, report func(error)) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error(
				"script panicked",
				"source", src,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			report(fmt.Errorf("%w: %s: %v", ErrScriptPanic, src, r))
		}
	}()
	script(scope)
}
