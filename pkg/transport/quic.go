package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/raskyld/pipe/pkg/flow"
)

// ALPN is negotiated when the TLS config does not set NextProtos.
const ALPN = "pipe/1"

var (
	QErrNone     = quic.ApplicationErrorCode(0x0)
	QErrInternal = quic.ApplicationErrorCode(0x1)
)

// PeerNameResolver names the remote party of a QUIC connection from the
// certificates it presented.
//
// *Implementations* MUST NOT be blocking, since they are invoked on
// the connection establishment critical path.
type PeerNameResolver func(certs []*x509.Certificate) (string, error)

// CommonNameResolver is the default resolver, using the x509 Subject
// Common Name of the peer certificate.
func CommonNameResolver(certs []*x509.Certificate) (string, error) {
	if len(certs) == 0 || certs[0].Subject.CommonName == "" {
		return "", ErrHostnameResolve
	}
	return certs[0].Subject.CommonName, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		Versions:        []quic.Version{quic.Version2, quic.Version1},
		MaxIdleTimeout:  1 * time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	}
}

func withALPN(tlsConf *tls.Config) (*tls.Config, error) {
	if tlsConf == nil {
		return nil, ErrNoTLSConfig
	}
	conf := tlsConf.Clone()
	if len(conf.NextProtos) == 0 {
		conf.NextProtos = []string{ALPN}
	}
	return conf, nil
}

type connCloser struct {
	conn quic.Connection
}

func (c connCloser) Close() error {
	return c.conn.CloseWithError(QErrNone, "channel closed")
}

func newStreamPort(conn quic.Connection, stream quic.Stream) *Port {
	codec := flow.NewBytesCodec(false)
	port := newPort(flow.Raw{
		RawSender:   flow.RemoteSender{SendStream: stream},
		RawReceiver: flow.RemoteReceiver{ReceiveStream: stream},
	}, codec, codec, DefaultBufferSize)
	port.closer = connCloser{conn: conn}
	return port
}

// DialQUIC opens a point-to-point channel to a worker served by
// [ServeQUIC] at addr.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (*Port, error) {
	conf, err := withALPN(tlsConf)
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, addr, conf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: failed to dial %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(QErrInternal, "could not open stream")
		return nil, fmt.Errorf("transport: failed to open stream to %s: %w", addr, err)
	}

	port := newStreamPort(conn, stream)
	// The peer only learns about the stream once a frame was written.
	if err := port.sender.Send(ctx, []byte{}); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// ListenQUIC allocates a QUIC listener suitable for [ServeQUIC].
func ListenQUIC(addr string, tlsConf *tls.Config) (*quic.Listener, error) {
	conf, err := withALPN(tlsConf)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, conf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: failed to allocate QUIC listener: %w", err)
	}
	return ln, nil
}

// ServeOption to pass to [ServeQUIC].
type ServeOption func(*serveConfig)

type serveConfig struct {
	logger   *slog.Logger
	resolver PeerNameResolver
}

// WithServeLog specifies which `slog.Handler` to use.
func WithServeLog(handler slog.Handler) ServeOption {
	return func(c *serveConfig) {
		if handler != nil {
			c.logger = slog.New(handler)
		}
	}
}

// WithPeerNameResolver overrides [CommonNameResolver].
func WithPeerNameResolver(resolver PeerNameResolver) ServeOption {
	return func(c *serveConfig) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

// ServeQUIC runs a dedicated copy of script for every inbound connection
// until ctx is done. The scope source is the resolved peer name, or the
// peer address when the peer presented no usable certificate.
func ServeQUIC(ctx context.Context, ln *quic.Listener, script Script, opts ...ServeOption) error {
	cfg := serveConfig{
		logger:   slog.Default(),
		resolver: CommonNameResolver,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := &Runtime{logger: cfg.logger}
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("transport: failed to accept connection: %w", err)
		}

		go func() {
			stream, err := conn.AcceptStream(ctx)
			if err != nil {
				cfg.logger.Warn(
					"connection closed before opening a stream",
					"peer_addr", conn.RemoteAddr().String(),
					"error", err,
				)
				_ = conn.CloseWithError(QErrInternal, "no stream")
				return
			}

			peer, err := cfg.resolver(conn.ConnectionState().TLS.PeerCertificates)
			if err != nil {
				peer = conn.RemoteAddr().String()
			}
			cfg.logger.Debug("accepted remote worker connection", "peer_name", peer)

			port := newStreamPort(conn, stream)
			scope := &DedicatedScope{Port: port, src: peer}
			rt.run(peer, script, scope, func(err error) {
				cfg.logger.Error("remote worker failed", "peer_name", peer, "error", err)
				_ = port.Close()
			})
			port.Start()
		}()
	}
}
