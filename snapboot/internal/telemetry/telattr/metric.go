// Package telattr builds the attribute sets attached to measurements.
package telattr

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MetricOption = metric.MeasurementOption

// With packs attributes into a measurement option. The metrics handlers
// build one per handler and extend it per call site.
func With(attrs ...attribute.KeyValue) MetricOption {
	return metric.WithAttributeSet(attribute.NewSet(attrs...))
}
