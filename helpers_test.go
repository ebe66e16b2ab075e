package pipe

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/pipe/pkg/transport"
)

type record struct {
	ID int `json:"id"`
}

var allRecords = []record{{ID: 1}, {ID: 2}, {ID: 3}}

func testHandler(emitter string) slog.Handler {
	return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}).WithAttrs([]slog.Attr{
		{Key: "emitter", Value: slog.StringValue(emitter)},
	})
}

func newTestRuntime(t *testing.T) *transport.Runtime {
	t.Helper()
	rt := transport.NewRuntime(transport.WithRuntimeLog(testHandler("runtime")))
	t.Cleanup(func() { _ = rt.Shutdown() })
	return rt
}

// recordsScript answers getAll, whatever the kind of scope.
func recordsScript(starts *counter) transport.Script {
	return func(scope transport.Scope) {
		if starts != nil {
			starts.add()
		}
		p, err := Attach(scope, WithLog(testHandler("worker")))
		if err != nil {
			panic(err)
		}
		p.HandleFunc("getAll", func(any) any {
			return allRecords
		})
	}
}

type counter struct {
	lk sync.Mutex
	n  int
}

func (c *counter) add() {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.n++
}

func (c *counter) get() int {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.n
}

// recorder is a slog.Handler keeping every record.
type recorder struct {
	lk      *sync.Mutex
	records *[]slog.Record
}

func newRecorder() recorder {
	return recorder{lk: &sync.Mutex{}, records: &[]slog.Record{}}
}

func (r recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r recorder) Handle(_ context.Context, rec slog.Record) error {
	r.lk.Lock()
	defer r.lk.Unlock()
	*r.records = append(*r.records, rec.Clone())
	return nil
}

func (r recorder) WithAttrs([]slog.Attr) slog.Handler { return r }

func (r recorder) WithGroup(string) slog.Handler { return r }

// debugMessages returns the diagnostics which reached this logger.
func (r recorder) debugMessages() []string {
	r.lk.Lock()
	defer r.lk.Unlock()
	var msgs []string
	for _, rec := range *r.records {
		if rec.Message != "debug" {
			continue
		}
		rec.Attrs(func(a slog.Attr) bool {
			if a.Key == string(LabelDebug) {
				msgs = append(msgs, a.Value.String())
			}
			return true
		})
	}
	return msgs
}

func (r recorder) sawDebug(substr string) bool {
	for _, msg := range r.debugMessages() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// countingSink counts increments per metric key.
type countingSink struct {
	metrics.BlackholeSink
	lk     sync.Mutex
	counts map[string]int
}

func newCountingSink() *countingSink {
	return &countingSink{counts: make(map[string]int)}
}

func (s *countingSink) IncrCounterWithLabels(key []string, val float32, _ []metrics.Label) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.counts[strings.Join(key, ".")] += int(val)
}

func (s *countingSink) count(key []string) int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.counts[strings.Join(key, ".")]
}
