// Package pipe routes named requests between isolated execution contexts.
//
// A caller creates a [Pipe] with the sources of the workers it talks to.
// [Pipe.Request] broadcasts a request to every worker, starting them on
// first use, and returns a [Future] resolved by the first response.
// Workers answer with the responders registered by [Pipe.Handle].
//
//	rt := transport.NewRuntime()
//	rt.Register("records", func(scope transport.Scope) {
//		p, _ := pipe.Attach(scope)
//		p.HandleFunc("getAll", func(any) any { return records })
//	})
//
//	caller, _ := pipe.New(pipe.WithRuntime(rt), pipe.WithSource("records"))
//	f, _ := caller.Request("getAll", nil)
//	v, _ := f.Wait(ctx)
//
// ## Roles
//
// The same operations exist in every role. A worker may request from its
// owner while answering it, and a hub (a shared worker) answers all the
// parties connected to it at once, so they all observe its responses.
//
// ## Delivery
//
// Nothing is retried nor acknowledged. A request nobody answers stays
// pending forever, and only one request per resource is tracked at a time:
// callers MUST bound their waits with a context.
//
// Diagnostics sent with [Pipe.Debug] travel hop by hop towards the caller
// which logs them.
package pipe
