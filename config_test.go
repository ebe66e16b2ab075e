package pipe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raskyld/pipe/pkg/transport"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
source: worker.js
overrides:
  worker.js: shared
codec: proto
dial_timeout: 10s
`))
	require.NoError(t, err)
	require.Equal(t, SourceList{"worker.js"}, cfg.Source)
	require.Equal(t, map[string]string{"worker.js": TransportShared}, cfg.Overrides)
	require.Equal(t, "proto", cfg.Codec)
	require.Equal(t, 10*time.Second, cfg.DialTimeout)

	cfg, err = ParseConfig([]byte("source: [a.js, b.js]\n"))
	require.NoError(t, err)
	require.Equal(t, SourceList{"a.js", "b.js"}, cfg.Source)

	_, err = ParseConfig([]byte("source: {a: b}\n"))
	require.ErrorIs(t, err, ErrInvalidCfg)
}

func TestLoadConfig_DrivesPipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  - worker.js
overrides:
  worker.js: shared
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	rt := newTestRuntime(t)
	rt.Register("worker.js", recordsScript(nil))
	opts, err := cfg.Options(rt, nil)
	require.NoError(t, err)

	caller, err := New(append(opts, WithLog(testHandler("caller")))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = caller.Close() })

	f, err := caller.Request("getAll", nil)
	require.NoError(t, err)
	records, err := Decode[[]record](waitFor(t, f))
	require.NoError(t, err)
	require.Equal(t, allRecords, records)
	require.Equal(t, VariantFanOut, caller.Endpoints()[0].Variant)
}

func TestConfigOptions_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrInvalidCfg)

	rt := transport.NewRuntime()

	_, err = (&FileConfig{Codec: "xml"}).Options(rt, nil)
	require.ErrorIs(t, err, ErrInvalidCfg)

	_, err = (&FileConfig{Overrides: map[string]string{"a": "carrier-pigeon"}}).Options(rt, nil)
	require.ErrorIs(t, err, ErrUnknownTransport)

	_, err = (&FileConfig{Overrides: map[string]string{"a": TransportShared}}).Options(nil, nil)
	require.ErrorIs(t, err, ErrNoRuntime)

	_, err = (&FileConfig{Overrides: map[string]string{"host:4242": TransportQUIC}}).Options(rt, nil)
	require.ErrorIs(t, err, transport.ErrNoTLSConfig)
}
