package internal

import (
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// NewResource identifies the emitting binary. The service name falls
// back to OTEL_SERVICE_NAME and then to the binary name, following the
// SDK's own defaulting rules.
func NewResource(config *Config) (*resource.Resource, error) {
	name := config.ServiceName
	if name == "" {
		name = os.Getenv("OTEL_SERVICE_NAME")
	}
	if name == "" {
		name = os.Args[0]
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
		),
	)
}
