package internal

// Config controls the telemetry backends. Metrics flow to an OTLP
// collector when ExportMetrics is set, and are additionally scrapeable
// through the Prometheus endpoint when PrometheusPort is non-zero.
type Config struct {
	ServiceName string `yaml:"serviceName,omitempty"`

	ExportMetrics bool   `yaml:"exportMetrics,omitempty"`
	GrpcEndpoint  string `yaml:"grpcEndpoint,omitempty"`

	PrometheusPort int `yaml:"prometheusPort,omitempty"`
}
