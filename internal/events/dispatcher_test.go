package events

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestMatchesEvent(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		event    string
		want     bool
	}{
		{"empty patterns match all", nil, "lease.ack", true},
		{"exact match", []string{"lease.ack"}, "lease.ack", true},
		{"exact no match", []string{"lease.ack"}, "lease.release", false},
		{"wildcard all", []string{"*"}, "anything", true},
		{"wildcard prefix", []string{"lease.*"}, "lease.ack", true},
		{"wildcard prefix match timeout", []string{"lease.*"}, "lease.timeout", true},
		{"wildcard prefix no match", []string{"lease.*"}, "leases.ack", false},
		{"multiple patterns", []string{"lease.ack", "lease.nak"}, "lease.nak", true},
		{"multiple patterns no match", []string{"lease.ack", "lease.nak"}, "lease.offer", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesEvent(tt.patterns, tt.event)
			if got != tt.want {
				t.Errorf("matchesEvent(%v, %q) = %v, want %v", tt.patterns, tt.event, got, tt.want)
			}
		})
	}
}

func TestMatchesMAC(t *testing.T) {
	tests := []struct {
		name string
		macs []string
		evt  Event
		want bool
	}{
		{"empty filter matches all", nil, Event{Lease: &LeaseData{MAC: "aa:bb:cc:dd:ee:ff"}}, true},
		{"no lease matches all", []string{"aa:bb:cc:dd:ee:ff"}, Event{}, true},
		{"matching mac", []string{"aa:bb:cc:dd:ee:ff"}, Event{Lease: &LeaseData{MAC: "aa:bb:cc:dd:ee:ff"}}, true},
		{"case insensitive", []string{"AA:BB:CC:DD:EE:FF"}, Event{Lease: &LeaseData{MAC: "aa:bb:cc:dd:ee:ff"}}, true},
		{"non-matching mac", []string{"00:11:22:33:44:55"}, Event{Lease: &LeaseData{MAC: "aa:bb:cc:dd:ee:ff"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesMAC(tt.macs, tt.evt); got != tt.want {
				t.Errorf("matchesMAC(%v, ...) = %v, want %v", tt.macs, got, tt.want)
			}
		})
	}
}

func TestDispatcherRoutesToWebhook(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	bus := NewBus(10, testLogger())
	go bus.Start()
	defer bus.Stop()

	d := NewDispatcher(bus, testLogger(), 1, time.Second)
	d.AddWebhook(WebhookConfig{Name: "acks", URL: server.URL, Events: []string{"lease.ack"}})
	d.Subscribe()
	go d.Start()

	bus.Publish(Event{Type: EventLeaseOffer, Timestamp: time.Now()})
	bus.Publish(Event{Type: EventLeaseAck, Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d.Stop()

	if got := hits.Load(); got != 1 {
		t.Errorf("webhook hits = %d, want 1", got)
	}
}

func TestScriptRunnerEnvironment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env.txt")
	r := NewScriptRunner(1, testLogger())

	r.Run(ScriptConfig{
		Name:    "record",
		Command: `echo "$LEASECTL_EVENT $LEASECTL_IP $LEASECTL_HOOK_NAME" > ` + out,
		Timeout: 5 * time.Second,
	}, Event{
		Type:  EventLeaseAck,
		Lease: &LeaseData{MAC: "aa:bb:cc:dd:ee:ff", IP: []byte{192, 168, 1, 50}, State: "success"},
	})
	r.Wait()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading script output: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "lease.ack 192.168.1.50 record" {
		t.Errorf("script saw %q", got)
	}
}

func TestDispatcherPublishDirect(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(nil, testLogger(), 1, time.Second)
	d.AddWebhook(WebhookConfig{Name: "all", URL: server.URL, Events: []string{"lease.*"}})

	var pub Publisher = d
	pub.Publish(Event{Type: EventLeaseAck, Timestamp: time.Now()})
	pub.Publish(Event{Type: EventLeaseRelease, Timestamp: time.Now()})
	d.Stop()

	if got := hits.Load(); got != 2 {
		t.Errorf("webhook hits after Stop = %d, want 2", got)
	}
}
