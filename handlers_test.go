package pipe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerTable_Dispatch(t *testing.T) {
	table := newHandlerTable()
	require.False(t, table.register("double", func(_ context.Context, params any) (any, error) {
		return params.(float64) * 2, nil
	}))

	v, err := table.dispatch(context.Background(), "double", 21.0)
	require.NoError(t, err)
	require.Equal(t, 42.0, v)

	_, err = table.dispatch(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestHandlerTable_ReplaceKeepsSnapshots(t *testing.T) {
	table := newHandlerTable()
	table.register("r", func(context.Context, any) (any, error) { return "h1", nil })
	before := table.snapshot()

	require.True(t, table.register("r", func(context.Context, any) (any, error) { return "h2", nil }))

	v, err := table.dispatch(context.Background(), "r", nil)
	require.NoError(t, err)
	require.Equal(t, "h2", v)

	old, ok := before.Get([]byte("r"))
	require.True(t, ok)
	v, err = old.(Responder)(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "h1", v, "a snapshot is not affected by later registrations")
}

func TestHandlerTable_ResponderFailures(t *testing.T) {
	table := newHandlerTable()
	cause := errors.New("database unavailable")
	table.register("fail", func(context.Context, any) (any, error) { return nil, cause })
	table.register("panic", func(context.Context, any) (any, error) { panic("boom") })

	_, err := table.dispatch(context.Background(), "fail", nil)
	require.ErrorIs(t, err, ErrResponder)
	require.ErrorIs(t, err, cause)

	_, err = table.dispatch(context.Background(), "panic", nil)
	require.ErrorIs(t, err, ErrResponder)
	require.Contains(t, err.Error(), "boom")
}

func TestHandlerTable_Resources(t *testing.T) {
	table := newHandlerTable()
	noop := func(context.Context, any) (any, error) { return nil, nil }
	for _, name := range []string{"records.getAll", "records.get", "users.get", "ping"} {
		table.register(name, noop)
	}

	require.Equal(t, []string{"records.get", "records.getAll"}, table.resources("records."))
	require.Equal(t, []string{"ping", "records.get", "records.getAll", "users.get"}, table.resources(""))
	require.Empty(t, table.resources("nope"))
}
