package tracing

import (
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName is the default name used when acquiring a tracer instance.
// Consistent naming helps identify the source of spans.
const tracerName = "formflow"

// GetTracer returns a named tracer instance from the globally configured
// OpenTelemetry provider. If no global provider is configured (e.g., in tests),
// it defaults to returning a NoOpTracer, which safely discards all tracing data.
// Note: It's generally preferred to inject the TracerProvider into components
// rather than relying on the global provider.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// RedactAttributes creates a new slice of OpenTelemetry KeyValue attributes
// where the value of any attribute whose key (converted to lowercase) matches
// a key in the `sensitive` set is replaced with "[REDACTED]". Field keys of
// fields registered as Sensitive feed this set.
// Returns the original slice if the set is nil/empty or the input is empty.
func RedactAttributes(attrs []attribute.KeyValue, sensitive map[string]struct{}) []attribute.KeyValue {
	if len(sensitive) == 0 || len(attrs) == 0 {
		return attrs
	}
	redactedAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		keyLower := strings.ToLower(string(kv.Key))
		if _, redact := sensitive[keyLower]; redact {
			redactedAttrs = append(redactedAttrs, attribute.String(string(kv.Key), "[REDACTED]"))
		} else {
			redactedAttrs = append(redactedAttrs, kv)
		}
	}
	return redactedAttrs
}

// RecordError records an error on an OpenTelemetry span with a stack trace
// and sets the span status. Does nothing if the error is nil or the span is
// nil or not recording. Validator error messages never embed field values,
// so no redaction pass is needed here.
func RecordError(span oteltrace.Span, err error) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}
