package pipe

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// registry owns the live endpoints of a pipe, at most one per source.
type registry struct {
	sources   []string
	overrides map[string]Transport
	fallback  *Transport

	// attach is called for every new endpoint, before it starts delivering.
	attach func(ep *Endpoint)
	// failed is called when an endpoint could not be created.
	failed func(source string, err error)
	// gone is called when a live endpoint was closed by its peer.
	gone func(ep *Endpoint)

	lk   sync.Mutex
	live map[string]*Endpoint
}

func (r *registry) transportFor(source string) (Transport, error) {
	if tr, ok := r.overrides[source]; ok {
		return tr, nil
	}
	if r.fallback == nil {
		return Transport{}, ErrNoRuntime
	}
	return *r.fallback, nil
}

// ensure creates the endpoints missing for the configured sources and
// returns every live endpoint. A source failing does not prevent the
// others from being created.
func (r *registry) ensure() []*Endpoint {
	r.lk.Lock()
	defer r.lk.Unlock()
	if r.live == nil {
		r.live = make(map[string]*Endpoint)
	}

	for _, source := range r.sources {
		if _, ok := r.live[source]; ok {
			continue
		}

		tr, err := r.transportFor(source)
		if err == nil {
			var ep *Endpoint
			ep, err = r.open(source, tr)
			if err == nil {
				r.live[source] = ep
				continue
			}
		}
		r.failed(source, err)
	}

	return r.snapshotLocked()
}

func (r *registry) open(source string, tr Transport) (ep *Endpoint, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrEndpoint, source, rec)
		}
	}()

	ch, err := tr.Open(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEndpoint, source, err)
	}
	ep = newEndpoint(source, tr.Variant, ch)
	r.attach(ep)
	go r.watch(ep)
	return ep, nil
}

// watch forgets ep once its channel closed, so the next ensure rebuilds
// the source from configuration.
func (r *registry) watch(ep *Endpoint) {
	<-ep.ch.Done()
	if r.drop(ep) && r.gone != nil {
		r.gone(ep)
	}
}

// drop removes ep if it is still the live endpoint of its source and
// reports whether it did.
func (r *registry) drop(ep *Endpoint) bool {
	r.lk.Lock()
	live, ok := r.live[ep.source]
	dropped := ok && live == ep
	if dropped {
		delete(r.live, ep.source)
	}
	r.lk.Unlock()

	_ = ep.close()
	return dropped
}

func (r *registry) snapshot() []*Endpoint {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.snapshotLocked()
}

func (r *registry) snapshotLocked() []*Endpoint {
	eps := make([]*Endpoint, 0, len(r.live))
	for _, source := range r.sources {
		if ep, ok := r.live[source]; ok {
			eps = append(eps, ep)
		}
	}
	return eps
}

// terminate closes every endpoint and forgets them; the next ensure
// rebuilds from the configured sources.
func (r *registry) terminate() error {
	r.lk.Lock()
	live := r.live
	r.live = nil
	r.lk.Unlock()

	var errs []error
	for _, source := range r.sources {
		if ep, ok := live[source]; ok {
			errs = append(errs, ep.close())
		}
	}
	return errors.Join(errs...)
}

// dedupe keeps the first occurrence of every source.
func dedupe(sources []string) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
