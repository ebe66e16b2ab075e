package pipe

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricRequestCount           = []string{"pipe", "request", "count"}
	MetricRequestOrphanedCount   = []string{"pipe", "request", "orphaned", "count"}
	MetricRequestPending         = []string{"pipe", "request", "pending"}
	MetricResponseCount          = []string{"pipe", "response", "count"}
	MetricResponseStaleCount     = []string{"pipe", "response", "stale", "count"}
	MetricDispatchCount          = []string{"pipe", "dispatch", "count"}
	MetricHandlerMissingCount    = []string{"pipe", "handler", "missing", "count"}
	MetricHandlerErrorCount      = []string{"pipe", "handler", "error", "count"}
	MetricEndpointErrorCount     = []string{"pipe", "endpoint", "error", "count"}
	MetricEndpointOpenCount      = []string{"pipe", "endpoint", "open", "count"}
	MetricEndpointClosedCount    = []string{"pipe", "endpoint", "closed", "count"}
	MetricEnvelopeMalformedCount = []string{"pipe", "envelope", "malformed", "count"}
	MetricDebugCount             = []string{"pipe", "debug", "count"}
)

type TelemetryLabel string

var (
	LabelError    TelemetryLabel = "error"
	LabelResource TelemetryLabel = "resource"
	LabelSource   TelemetryLabel = "source"
	LabelVariant  TelemetryLabel = "variant"
	LabelRole     TelemetryLabel = "role"
	LabelPipeID   TelemetryLabel = "pipe_id"
	LabelPortID   TelemetryLabel = "port_id"
	LabelDebug    TelemetryLabel = "debug"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
