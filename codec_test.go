package pipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Envelope
		err  error
	}{
		{
			name: "request without params",
			wire: `{"resource":"getAll"}`,
			want: Envelope{Kind: KindRequest, Resource: "getAll"},
		},
		{
			name: "request with params",
			wire: `{"resource":"get","params":{"id":3}}`,
			want: Envelope{Kind: KindRequest, Resource: "get", Params: map[string]any{"id": 3.0}},
		},
		{
			name: "null results is still a response",
			wire: `{"resource":"getAll","results":null}`,
			want: Envelope{Kind: KindResponse, Resource: "getAll"},
		},
		{
			name: "results win over params",
			wire: `{"resource":"r","params":1,"results":2}`,
			want: Envelope{Kind: KindResponse, Resource: "r", Results: 2.0},
		},
		{
			name: "debug",
			wire: `{"debug":"got worker"}`,
			want: Envelope{Kind: KindDebug, Debug: "got worker"},
		},
		{
			name: "empty object",
			wire: `{}`,
			err:  ErrMalformedEnvelope,
		},
		{
			name: "empty resource",
			wire: `{"resource":""}`,
			err:  ErrMalformedEnvelope,
		},
		{
			name: "resource of the wrong type",
			wire: `{"resource":12}`,
			err:  ErrMalformedEnvelope,
		},
		{
			name: "not an object",
			wire: `[1,2]`,
			err:  ErrMalformedEnvelope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := JSONCodec{}.Unmarshal([]byte(tt.wire))
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, env)
		})
	}
}

func TestCodecs_PreserveEnvelopes(t *testing.T) {
	envelopes := []Envelope{
		requestEnvelope("getAll", nil),
		requestEnvelope("get", map[string]any{"id": 3.0, "tags": []any{"a", "b"}}),
		responseEnvelope("getAll", []any{map[string]any{"id": 1.0}}),
		responseEnvelope("nothing", nil),
		debugEnvelope("got worker"),
	}

	for _, codec := range []Codec{JSONCodec{}, ProtoCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			for _, env := range envelopes {
				buf, err := codec.Marshal(env)
				require.NoError(t, err)
				got, err := codec.Unmarshal(buf)
				require.NoError(t, err)
				require.Equal(t, env, got)
			}
		})
	}
}

func TestProtoCodec_NormalisesTypedValues(t *testing.T) {
	buf, err := ProtoCodec{}.Marshal(responseEnvelope("getAll", allRecords))
	require.NoError(t, err)

	env, err := ProtoCodec{}.Unmarshal(buf)
	require.NoError(t, err)
	records, err := Decode[[]record](env.Results)
	require.NoError(t, err)
	require.Equal(t, allRecords, records)
}

func TestCodecs_RejectMalformed(t *testing.T) {
	_, err := JSONCodec{}.Marshal(Envelope{})
	require.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = JSONCodec{}.Marshal(responseEnvelope("r", make(chan int)))
	require.ErrorIs(t, err, ErrEncodeEnvelope)

	_, err = ProtoCodec{}.Unmarshal([]byte{0xff, 0xff})
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	require.Equal(t, "json", c.Name())

	c, err = CodecByName("proto")
	require.NoError(t, err)
	require.Equal(t, "proto", c.Name())

	_, err = CodecByName("msgpack")
	require.ErrorIs(t, err, ErrInvalidCfg)
}
