package otel

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionCounter counts authorization decisions as authz.decisions.
type DecisionCounter struct {
	counter metric.Int64Counter
}

// NewDecisionCounter registers the authz.decisions counter on provider.
func NewDecisionCounter(provider metric.MeterProvider) (*DecisionCounter, error) {
	c, err := provider.Meter(instrumentationName).Int64Counter(
		"authz.decisions",
		metric.WithDescription("Authorization decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &DecisionCounter{counter: c}, nil
}

// Record adds one decision. Safe on a nil counter.
func (d *DecisionCounter) Record(ctx context.Context, allowed bool, reason, resource string) {
	if d == nil {
		return
	}
	d.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("allowed", strconv.FormatBool(allowed)),
		attribute.String("reason", reason),
		attribute.String("resource", resource),
	))
}
