package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestNew_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRespawn()
	m.RecordRespawn()
	if got := counterValue(t, m.ClientRespawns); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}

	m.RecordCrash()
	if got := counterValue(t, m.ClientCrashes); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}

	m.RecordLoadError()
	if got := counterValue(t, m.LoadErrorsTotal); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}

	m.SetSessionActive(true)
	if got := gaugeValue(t, m.SessionsActive); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
	m.SetSessionActive(false)
	if got := gaugeValue(t, m.SessionsActive); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestNew_LabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRestart("soft", "watcher")
	m.RecordRestart("hard", "request")
	m.RecordWatcherEvent("changed")

	if got := counterValue(t, m.RestartsTotal.WithLabelValues("soft", "watcher")); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
	if got := counterValue(t, m.RestartsTotal.WithLabelValues("hard", "request")); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
	if got := counterValue(t, m.WatcherEventsTotal.WithLabelValues("changed")); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
}

func TestNilMetrics_AllMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordRestart("soft", "watcher")
	m.RecordWatcherEvent("created")
	m.RecordRespawn()
	m.RecordCrash()
	m.SetSessionActive(true)
	m.RecordLoadError()
}
