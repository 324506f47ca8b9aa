package telattr

import (
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"go.opentelemetry.io/otel/attribute"
)

func Network(network string) attribute.KeyValue {
	return attribute.String(logging.FieldNetwork, network)
}

func Phase(phase string) attribute.KeyValue {
	return attribute.String(logging.FieldPhase, phase)
}

func ClientKind(kind string) attribute.KeyValue {
	return attribute.String(logging.FieldClientKind, kind)
}

func Repository(repo string) attribute.KeyValue {
	return attribute.String(logging.FieldRepository, repo)
}

func SnapshotTag(tag string) attribute.KeyValue {
	return attribute.String(logging.FieldSnapshotTag, tag)
}
