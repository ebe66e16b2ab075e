// Package transport provides the message channels connecting isolated
// execution contexts.
//
// A [Runtime] maps source locators to [Script]s. Each script runs in its
// own goroutine and only talks to the outside world through a [Scope]:
//
//   - [NewWorker] starts a dedicated copy of the script, reachable through a
//     point-to-point [Channel] which listens as soon as a message listener
//     is attached.
//   - [NewSharedWorker] connects to the single hub running the script for
//     the whole runtime. Every connecting party gets its own [Port], and
//     messages only flow once [Port.Start] has been called.
//   - [DialQUIC] and [ServeQUIC] run the same point-to-point contract over
//     a QUIC stream between two processes. [NewRemoteWorker] dials in the
//     background and queues messages until the stream is open.
//
// Channels carry opaque byte frames, copied on local delivery so sender
// and receiver never share memory. Frames posted on one channel are
// delivered in order, one at a time.
package transport
