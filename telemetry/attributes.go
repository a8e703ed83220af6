package telemetry

import "go.opentelemetry.io/otel/attribute"

func classAttr(classID string) attribute.KeyValue {
	return attribute.String("class_id", classID)
}
