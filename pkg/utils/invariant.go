// Invariants are conditions in code that must be true; otherwise, there is a bug in code.
// Think of what you'd `panic()` on (equivalent to `assert` in other languages), but you don't want to crash the
// server because of that violation. A violated invariant logs an error and increments a monitoring counter that an
// alert can watch. Binaries built in test mode panic instead, so bugs surface in tests and debug builds.
// The caller still has to handle the erroneous case, e.g. fall back to a sane value or return early.
//
// Do not use invariants for conditions that depend on external factors; a missing dataset file is an error, not an
// invariant. A bounded cache holding more keys than its capacity is.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

// RaiseInvariant records a violation of invariant `invariantType` inside `module`; `args` are slog key-value pairs.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns the number of violations recorded for `invariantType` inside `module`.
func GetMetricValue(module, invariantType string) int {
	metric := &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error("Failed to read invariant metric.", "error", err)
		return 0
	}
	return int(metric.GetCounter().GetValue())
}
