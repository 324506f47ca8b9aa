package internal

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const metricExportInterval = 10 * time.Second

// InitMetrics installs the global meter provider backed by an OTLP gRPC
// exporter. With exporting disabled the default no-op provider stays in
// place and every recorded measurement is dropped.
func InitMetrics(ctx context.Context, config *Config) error {
	if config == nil || !config.ExportMetrics {
		return nil
	}

	exporter, err := otlpmetricgrpc.New(ctx, exporterOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to initialize exporter: %w", err)
	}

	res, err := NewResource(config)
	if err != nil {
		return err
	}

	otel.SetMeterProvider(sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(metricExportInterval))),
		sdkmetric.WithResource(res),
	))
	return nil
}

func exporterOptions(config *Config) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if config.GrpcEndpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(config.GrpcEndpoint))
	}
	return opts
}

// ShutdownMetrics flushes pending measurements. It is a no-op when
// metrics were never initialized.
func ShutdownMetrics(ctx context.Context) {
	if mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		_ = mp.Shutdown(context.WithoutCancel(ctx))
	}
}
