package pipe

import (
	"sync"
)

// correlator tracks the requests issued by a pipe, one per resource name.
type correlator struct {
	lk      sync.Mutex
	pending map[string]*Future
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]*Future)}
}

// track registers a new pending request for resource. A request still
// pending under the same name is forgotten and returned: it will never
// resolve.
func (c *correlator) track(resource string) (f *Future, orphaned *Future) {
	f = newFuture(resource)
	c.lk.Lock()
	defer c.lk.Unlock()
	orphaned = c.pending[resource]
	c.pending[resource] = f
	return f, orphaned
}

// resolve completes the pending request for resource. It reports false
// when nothing was pending, e.g. a second endpoint answering a broadcast.
func (c *correlator) resolve(resource string, results any) bool {
	c.lk.Lock()
	f, ok := c.pending[resource]
	if ok {
		delete(c.pending, resource)
	}
	c.lk.Unlock()

	if !ok {
		return false
	}
	return f.complete(results)
}

func (c *correlator) len() int {
	c.lk.Lock()
	defer c.lk.Unlock()
	return len(c.pending)
}
