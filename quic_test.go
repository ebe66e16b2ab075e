package pipe

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/raskyld/pipe/pkg/transport"
	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %s", err)
		return nil
	}
	return key
}

func generateCa(t *testing.T, pkey *ecdsa.PrivateKey) []byte {
	t.Helper()
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("failed to generate serialNumber: %s", err)
	}
	tmpl := x509.Certificate{
		Subject: pkix.Name{
			CommonName: "self-signed",
		},
		SerialNumber:          serialNumber,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(1 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &pkey.PublicKey, pkey)
	if err != nil {
		t.Fatalf("failed to generate CA: %s", err)
		return nil
	}
	return certDER
}

func generateLeaf(t *testing.T, ca *x509.Certificate, caKP, leafKP *ecdsa.PrivateKey, cn string) []byte {
	t.Helper()
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("failed to generate serialNumber: %s", err)
	}
	tmpl := x509.Certificate{
		Subject: pkix.Name{
			CommonName: cn,
		},
		SerialNumber: serialNumber,
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(1 * time.Hour),
		IPAddresses: []net.IP{
			{127, 0, 0, 1},
		},
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, ca, &leafKP.PublicKey, caKP)
	if err != nil {
		t.Fatalf("failed to generate leaf: %s", err)
		return nil
	}
	return certDER
}

// mutualTLS returns a server and a client config signed by the same CA.
func mutualTLS(t *testing.T, serverCN, clientCN string) (*tls.Config, *tls.Config) {
	t.Helper()
	caKey := generateKeyPair(t)
	ca, err := x509.ParseCertificate(generateCa(t, caKey))
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(ca)

	leaf := func(cn string) *tls.Config {
		key := generateKeyPair(t)
		der := generateLeaf(t, ca, caKey, key, cn)
		cert, err := x509.ParseCertificate(der)
		require.NoError(t, err)
		return &tls.Config{
			Certificates: []tls.Certificate{
				{
					Certificate: [][]byte{der},
					Leaf:        cert,
					PrivateKey:  key,
				},
			},
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  pool,
			RootCAs:    pool,
		}
	}
	return leaf(serverCN), leaf(clientCN)
}

func TestPipe_OverQUIC(t *testing.T) {
	serverTLS, clientTLS := mutualTLS(t, "server", "dashboard")

	ln, err := transport.ListenQUIC("127.0.0.1:0", serverTLS)
	require.NoError(t, err)

	peers := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- transport.ServeQUIC(ctx, ln, func(scope transport.Scope) {
			peers <- scope.Source()
			recordsScript(nil)(scope)
		}, transport.WithServeLog(testHandler("server")))
	}()
	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
		<-served
	})

	addr := ln.Addr().String()
	caller, err := New(
		WithSource(addr),
		WithTransport(QUIC(clientTLS, 5*time.Second)),
		WithLog(testHandler("caller")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = caller.Close() })

	f, err := caller.Request("getAll", nil)
	require.NoError(t, err)
	records, err := Decode[[]record](waitFor(t, f))
	require.NoError(t, err)
	require.Equal(t, allRecords, records)

	select {
	case peer := <-peers:
		require.Equal(t, "dashboard", peer, "the worker is named after the client certificate")
	case <-time.After(5 * time.Second):
		t.Fatal("the server never ran the worker script")
	}
}

func TestPipe_QUICDialFailureIsIsolated(t *testing.T) {
	rec := newRecorder()
	caller, err := New(
		WithSource("127.0.0.1:1"),
		WithTransport(QUIC(nil, time.Second)),
		WithLog(rec),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = caller.Close() })

	require.NoError(t, caller.Connect())
	require.True(t, rec.sawDebug("endpoint error 127.0.0.1:1"))
	require.Empty(t, caller.Endpoints())
}

func TestPipe_QUICRequestDoesNotWaitForDial(t *testing.T) {
	_, clientTLS := mutualTLS(t, "server", "dashboard")

	// Nothing listens there: the handshake can only time out.
	rec := newRecorder()
	sink := newCountingSink()
	caller, err := New(
		WithSource("127.0.0.1:1"),
		WithTransport(QUIC(clientTLS, 2*time.Second)),
		WithLog(rec),
		WithMetricSink(sink),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = caller.Close() })

	start := time.Now()
	f, err := caller.Request("getAll", nil)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second, "the request must not wait for the handshake")
	require.False(t, f.Resolved())

	infos := caller.Endpoints()
	require.Len(t, infos, 1)
	require.Equal(t, VariantPointToPoint, infos[0].Variant)

	require.Eventually(t, func() bool {
		return rec.sawDebug("endpoint error 127.0.0.1:1") &&
			len(caller.Endpoints()) == 0 &&
			sink.count(MetricEndpointClosedCount) == 1
	}, 10*time.Second, 20*time.Millisecond, "a failed dial is reported and the endpoint forgotten")
}

func TestRemoteWorker_QueuesUntilDialed(t *testing.T) {
	serverTLS, clientTLS := mutualTLS(t, "server", "dashboard")
	ln, err := transport.ListenQUIC("127.0.0.1:0", serverTLS)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- transport.ServeQUIC(ctx, ln, func(scope transport.Scope) {
			s := scope.(*transport.DedicatedScope)
			s.OnMessage(func(msg []byte) {
				_ = s.PostMessage(append([]byte("echo:"), msg...))
			})
		}, transport.WithServeLog(testHandler("server")))
	}()
	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
		<-served
	})

	w, err := transport.NewRemoteWorker(ln.Addr().String(), clientTLS, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	// Posted before the handshake completed.
	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, w.PostMessage([]byte(msg)))
	}

	got := make(chan string, 3)
	w.OnMessage(func(msg []byte) { got <- string(msg) })
	w.Start()

	for _, want := range []string{"echo:a", "echo:b", "echo:c"} {
		select {
		case msg := <-got:
			require.Equal(t, want, msg)
		case <-time.After(5 * time.Second):
			t.Fatalf("never received %s", want)
		}
	}

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.PostMessage([]byte("late")), transport.ErrChannelClosed)
	select {
	case <-w.Done():
	default:
		t.Fatal("closed worker must report Done")
	}
}
