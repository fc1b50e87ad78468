package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := New()
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestConnectionOpenedAndClosed(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ConnectionOpened("db-a")
	c.ConnectionOpened("db-a")
	if v := getGaugeValue(c.connectionsActive.WithLabelValues("db-a")); v != 2 {
		t.Errorf("expected active=2, got %v", v)
	}

	c.ConnectionClosed("db-a", "clean")
	if v := getGaugeValue(c.connectionsActive.WithLabelValues("db-a")); v != 1 {
		t.Errorf("expected active=1 after close, got %v", v)
	}
	if v := getCounterValue(c.connectionsClosed.WithLabelValues("db-a", "clean")); v != 1 {
		t.Errorf("expected closed_total=1, got %v", v)
	}
}

func TestRequestStartedAndFinished(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RequestStarted("db-a")
	c.RequestStarted("db-a")
	if v := getGaugeValue(c.requestsInFlight.WithLabelValues("db-a")); v != 2 {
		t.Errorf("expected in_flight=2, got %v", v)
	}

	c.RequestFinished("db-a", "query", 5*time.Millisecond)
	if v := getGaugeValue(c.requestsInFlight.WithLabelValues("db-a")); v != 1 {
		t.Errorf("expected in_flight=1 after finish, got %v", v)
	}
}

func TestRequestDurationObserved(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RequestStarted("db-a")
	c.RequestFinished("db-a", "execute", 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "pgconn_request_duration_seconds" {
			found = true
			if len(f.Metric) == 0 {
				t.Error("expected at least one observation")
			}
		}
	}
	if !found {
		t.Error("pgconn_request_duration_seconds metric family not found")
	}
}

func TestSetTypeCacheSize(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetTypeCacheSize("db-a", 7)
	if v := getGaugeValue(c.typeCacheSize.WithLabelValues("db-a")); v != 7 {
		t.Errorf("expected type cache size 7, got %v", v)
	}

	// A second call replaces the value, it does not accumulate.
	c.SetTypeCacheSize("db-a", 9)
	if v := getGaugeValue(c.typeCacheSize.WithLabelValues("db-a")); v != 9 {
		t.Errorf("expected type cache size 9 after update, got %v", v)
	}
}

func TestReconnectAndFailoverCounters(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ReconnectAttempted("db-a")
	c.ReconnectAttempted("db-a")
	if v := getCounterValue(c.reconnectsTotal.WithLabelValues("db-a")); v != 2 {
		t.Errorf("expected reconnects=2, got %v", v)
	}

	c.HostFailedOver("db-a")
	if v := getCounterValue(c.failoversTotal.WithLabelValues("db-a")); v != 1 {
		t.Errorf("expected failovers=1, got %v", v)
	}
}

func TestRemoveHost(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ConnectionOpened("db-a")
	c.RequestStarted("db-a")
	c.SetTypeCacheSize("db-a", 3)
	c.ReconnectAttempted("db-a")

	c.RemoveHost("db-a")

	if v := getGaugeValue(c.connectionsActive.WithLabelValues("db-a")); v != 0 {
		t.Errorf("expected active metric cleared, got %v", v)
	}
	if v := getGaugeValue(c.typeCacheSize.WithLabelValues("db-a")); v != 0 {
		t.Errorf("expected type cache size metric cleared, got %v", v)
	}
}
