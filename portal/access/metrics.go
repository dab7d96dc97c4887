package access

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_entity_operations_total",
		Help: "Entity access operations by entity, operation and outcome",
	}, []string{"entity", "operation", "outcome"})

	operationDurationMetric = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name: "portal_entity_operation_duration_seconds",
		Help: "Duration of entity access operations",
	}, []string{"entity", "operation"})
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	if _, ok := AsValidationError(err); ok {
		return "invalid"
	}
	return "error"
}

func observe(entity, operation string) func(err error) {
	timer := prometheus.NewTimer(operationDurationMetric.WithLabelValues(entity, operation))
	return func(err error) {
		timer.ObserveDuration()
		operationsMetric.WithLabelValues(entity, operation, outcome(err)).Inc()
	}
}
