package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndCount(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.RunsCompleted.WithLabelValues("SUCCEEDED").Inc()
	m.RunsCompleted.WithLabelValues("SUCCEEDED").Inc()
	m.RunsCompleted.WithLabelValues("FAILED").Inc()

	if got := testutil.ToFloat64(m.RunsCompleted.WithLabelValues("SUCCEEDED")); got != 2 {
		t.Errorf("SUCCEEDED count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsCompleted.WithLabelValues("FAILED")); got != 1 {
		t.Errorf("FAILED count = %v, want 1", got)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("duplicate Register should fail")
	}
}
