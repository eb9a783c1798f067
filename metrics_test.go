package kadmin

import (
	"sync"
	"testing"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricSMSSent)

	snap := m.Snapshot()
	if snap[MetricLoginSuccess] != 2 {
		t.Fatalf("expected 2 login successes, got %d", snap[MetricLoginSuccess])
	}
	if snap[MetricSMSSent] != 1 {
		t.Fatalf("expected 1 sms sent, got %d", snap[MetricSMSSent])
	}
	if snap[MetricRefreshFailure] != 0 {
		t.Fatalf("expected untouched counter to be 0, got %d", snap[MetricRefreshFailure])
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)

	snap := m.Snapshot()
	if len(snap) != 0 {
		t.Fatalf("expected empty snapshot from nil metrics, got %v", snap)
	}
}

func TestMetricsOutOfRangeID(t *testing.T) {
	m := NewMetrics()
	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 10)
	for id, v := range m.Snapshot() {
		if v != 0 {
			t.Fatalf("counter %d unexpectedly non-zero: %d", id, v)
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics()
	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot()[MetricRefreshSuccess]; got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}
