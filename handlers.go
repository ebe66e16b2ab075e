package pipe

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Responder answers requests for a resource. It may block, e.g. to issue
// its own requests; ctx is cancelled when the pipe closes.
// A non-nil error drops the request: no response is sent.
type Responder func(ctx context.Context, params any) (any, error)

// handlerTable maps resource names to their responder. Lookups work on an
// immutable snapshot so dispatch never contends with registration.
type handlerTable struct {
	lk   sync.Mutex
	tree *iradix.Tree
}

func newHandlerTable() *handlerTable {
	return &handlerTable{tree: iradix.New()}
}

// register stores r for resource and reports whether it replaced a
// previous responder.
func (t *handlerTable) register(resource string, r Responder) (replaced bool) {
	t.lk.Lock()
	defer t.lk.Unlock()
	t.tree, _, replaced = t.tree.Insert([]byte(resource), r)
	return
}

func (t *handlerTable) snapshot() *iradix.Tree {
	t.lk.Lock()
	defer t.lk.Unlock()
	return t.tree
}

func (t *handlerTable) lookup(resource string) (Responder, bool) {
	v, ok := t.snapshot().Get([]byte(resource))
	if !ok {
		return nil, false
	}
	return v.(Responder), true
}

// dispatch runs the responder registered for resource. A panicking
// responder is reported as an [ErrResponder].
func (t *handlerTable) dispatch(ctx context.Context, resource string, params any) (results any, err error) {
	r, ok := t.lookup(resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, resource)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: panic: %v\n%s", ErrResponder, resource, rec, debug.Stack())
		}
	}()

	results, err = r(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResponder, resource, err)
	}
	return results, nil
}

// resources lists the registered names starting with prefix, in order.
func (t *handlerTable) resources(prefix string) []string {
	var names []string
	t.snapshot().Root().WalkPrefix([]byte(prefix), func(k []byte, _ interface{}) bool {
		names = append(names, string(k))
		return false
	})
	return names
}
