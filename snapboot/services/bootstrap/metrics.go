package bootstrap

import (
	"context"
	"time"

	"github.com/ethfleet/snapboot/snapboot/internal/telemetry"
	"github.com/ethfleet/snapboot/snapboot/internal/telemetry/telattr"
	"go.opentelemetry.io/otel/attribute"
)

const metricsNamespace = "snapboot.bootstrap."

type MetricsHandler struct {
	attributes telattr.MetricOption

	phaseTransitions telemetry.Counter
	snapshotBytes    telemetry.Counter
	catchupPolls     telemetry.Counter
	errors           telemetry.Counter
	bootstrapTime    telemetry.Histogram
}

func NewMetricsHandler(network string) (*MetricsHandler, error) {
	meter := telemetry.NewMeter("github.com/ethfleet/snapboot/snapboot/services/bootstrap")

	h := &MetricsHandler{
		attributes: telattr.With(telattr.Network(network)),
	}

	var err error
	if h.phaseTransitions, err = meter.Int64Counter(metricsNamespace + "phase_transitions_total"); err != nil {
		return nil, err
	}
	if h.snapshotBytes, err = meter.Int64Counter(metricsNamespace + "snapshot_bytes_total"); err != nil {
		return nil, err
	}
	if h.catchupPolls, err = meter.Int64Counter(metricsNamespace + "catchup_polls_total"); err != nil {
		return nil, err
	}
	if h.errors, err = meter.Int64Counter(metricsNamespace + "errors_total"); err != nil {
		return nil, err
	}
	if h.bootstrapTime, err = meter.Int64Histogram(metricsNamespace + "duration_seconds"); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *MetricsHandler) RecordPhase(ctx context.Context, phase Phase) {
	h.phaseTransitions.Add(ctx, 1, h.attributes, telattr.With(telattr.Phase(phase.String())))
}

func (h *MetricsHandler) RecordSnapshotBytes(ctx context.Context, n int64) {
	h.snapshotBytes.Add(ctx, n, h.attributes)
}

func (h *MetricsHandler) RecordPoll(ctx context.Context) {
	h.catchupPolls.Add(ctx, 1, h.attributes)
}

func (h *MetricsHandler) RecordError(ctx context.Context, origin string) {
	h.errors.Add(ctx, 1, h.attributes, telattr.With(attribute.String("error.origin", origin)))
}

func (h *MetricsHandler) RecordBootstrapDuration(ctx context.Context, elapsed time.Duration) {
	h.bootstrapTime.Record(ctx, int64(elapsed.Seconds()), h.attributes)
}
