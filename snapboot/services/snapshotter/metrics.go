package snapshotter

import (
	"context"
	"time"

	"github.com/ethfleet/snapboot/snapboot/internal/telemetry"
	"github.com/ethfleet/snapboot/snapboot/internal/telemetry/telattr"
)

const metricsNamespace = "snapboot.snapshotter."

type MetricsHandler struct {
	attributes telattr.MetricOption

	snapshotsCreated telemetry.Counter
	snapshotsPruned  telemetry.Counter
	cyclesSkipped    telemetry.Counter
	bytesProcessed   telemetry.Counter
	captureTime      telemetry.Histogram
}

func NewMetricsHandler(network string) (*MetricsHandler, error) {
	meter := telemetry.NewMeter("github.com/ethfleet/snapboot/snapboot/services/snapshotter")

	h := &MetricsHandler{
		attributes: telattr.With(telattr.Network(network)),
	}

	var err error
	if h.snapshotsCreated, err = meter.Int64Counter(metricsNamespace + "snapshots_created_total"); err != nil {
		return nil, err
	}
	if h.snapshotsPruned, err = meter.Int64Counter(metricsNamespace + "snapshots_pruned_total"); err != nil {
		return nil, err
	}
	if h.cyclesSkipped, err = meter.Int64Counter(metricsNamespace + "cycles_skipped_total"); err != nil {
		return nil, err
	}
	if h.bytesProcessed, err = meter.Int64Counter(metricsNamespace + "bytes_processed_total"); err != nil {
		return nil, err
	}
	if h.captureTime, err = meter.Int64Histogram(metricsNamespace + "capture_seconds"); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *MetricsHandler) RecordSnapshotCreated(ctx context.Context, bytes int64, elapsed time.Duration) {
	h.snapshotsCreated.Add(ctx, 1, h.attributes)
	h.bytesProcessed.Add(ctx, bytes, h.attributes)
	h.captureTime.Record(ctx, int64(elapsed.Seconds()), h.attributes)
}

func (h *MetricsHandler) RecordSnapshotsPruned(ctx context.Context, count int64) {
	h.snapshotsPruned.Add(ctx, count, h.attributes)
}

func (h *MetricsHandler) RecordCycleSkipped(ctx context.Context) {
	h.cyclesSkipped.Add(ctx, 1, h.attributes)
}
