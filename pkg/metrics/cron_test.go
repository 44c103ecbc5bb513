package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncSuccess("subscription-billing")
	m.IncSuccess("subscription-billing")
	m.IncFailure("")
	m.ObserveDuration("subscription-billing", 125*time.Millisecond)

	if got := testutil.ToFloat64(m.success.WithLabelValues("subscription-billing")); got != 2 {
		t.Fatalf("expected 2 successes, got %f", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("empty job name should count under unknown, got %f", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)

	var l *LedgerMetrics
	l.ObserveMovement("debit", 100)
	l.IncShortfall()
}

func TestLedgerMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := NewLedgerMetrics(reg)

	l.ObserveMovement("credit", 500)
	l.ObserveMovement("credit", 250)
	l.IncShortfall()

	if got := testutil.ToFloat64(l.movements.WithLabelValues("credit")); got != 2 {
		t.Fatalf("expected 2 movements, got %f", got)
	}
	if got := testutil.ToFloat64(l.volume.WithLabelValues("credit")); got != 750 {
		t.Fatalf("expected 750 cents, got %f", got)
	}
	if got := testutil.ToFloat64(l.shortfalls); got != 1 {
		t.Fatalf("expected 1 shortfall, got %f", got)
	}
}
