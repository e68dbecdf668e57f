package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext extracts remote trace context from the carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":                 {},
	"http.route":                  {},
	"http.status_code":            {},
	"http.server_duration_ms":     {},
	"request_id":                  {},
	"tx_ref":                      {},
	"plan_code":                   {},
	"subscription.status":         {},
	"payment.outcome":             {},
	"gateway.provider":            {},
	"entitlement.visible_limit":   {},
	"entitlement.hidden_listings": {},
}

// SafeAttributes strips attributes that could leak payloads or payer data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError returns a redacted error suitable for span recording.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	// Record only the outermost sentinel, never wrapped driver detail.
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return errors.New(firstLine(err.Error()))
		}
		err = unwrapped
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
