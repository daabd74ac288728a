package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers automatically, so we just verify they exist
	// by writing a value and collecting it.
	PacketsSent.WithLabelValues("DHCPDISCOVER").Inc()
	PacketsReceived.WithLabelValues("DHCPOFFER").Inc()
	PacketsDiscarded.WithLabelValues("xid_mismatch").Inc()
	LeaseAttempts.WithLabelValues("success").Inc()
	LeaseAttemptDuration.Observe(0.2)
	BindFailures.Inc()
	Releases.WithLabelValues("sent").Inc()
	TasksActive.Set(3)
	TasksTracked.Set(7)
	TasksEvicted.Inc()
	EventsPublished.WithLabelValues("lease.ack").Inc()
	EventBufferDrops.Inc()
	HookExecutions.WithLabelValues("webhook", "success").Inc()
	HookDuration.WithLabelValues("webhook").Observe(0.01)
	APIRequests.WithLabelValues("GET", "/api/v1/health", "200").Inc()
	APIRequestDuration.WithLabelValues("GET", "/api/v1/health").Observe(0.001)
	StartTime.SetToCurrentTime()
	BuildInfo.WithLabelValues("dev").Set(1)

	if got := testutil.ToFloat64(TasksActive); got != 3 {
		t.Errorf("TasksActive = %v, want 3", got)
	}
	if got := testutil.ToFloat64(BindFailures); got != 1 {
		t.Errorf("BindFailures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(PacketsDiscarded.WithLabelValues("xid_mismatch")); got != 1 {
		t.Errorf("PacketsDiscarded{xid_mismatch} = %v, want 1", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		// Skip standard go_* and process_* and promhttp_* metrics
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "leasectl_") {
			t.Errorf("metric %q does not have leasectl_ prefix", name)
		}
	}
}
