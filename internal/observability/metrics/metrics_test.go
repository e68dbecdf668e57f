package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("plan_code", "standard_user"),
		attribute.String("account_email", "someone@example.com"),
		attribute.String("provider", "chapa"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "account_email" {
			t.Fatalf("expected account_email to be dropped")
		}
	}
}
