package events

import (
	"net"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(100, testLogger())
	go bus.Start()
	defer bus.Stop()

	ch := bus.Subscribe(100)
	defer bus.Unsubscribe(ch)

	bus.Publish(Event{
		Type:      EventLeaseAck,
		Timestamp: time.Now(),
		Lease:     &LeaseData{MAC: "aa:bb:cc:dd:ee:ff", IP: net.IPv4(192, 168, 1, 50)},
	})

	select {
	case received := <-ch:
		if received.Type != EventLeaseAck {
			t.Errorf("received event type = %q, want %q", received.Type, EventLeaseAck)
		}
		if received.Lease == nil || received.Lease.MAC != "aa:bb:cc:dd:ee:ff" {
			t.Error("lease data not preserved")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus(100, testLogger())
	go bus.Start()
	defer bus.Stop()

	ch1 := bus.Subscribe(100)
	ch2 := bus.Subscribe(100)
	defer bus.Unsubscribe(ch1)
	defer bus.Unsubscribe(ch2)

	bus.Publish(Event{Type: EventLeaseDiscover, Timestamp: time.Now()})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != EventLeaseDiscover {
				t.Errorf("event type = %q, want %q", e.Type, EventLeaseDiscover)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event on subscriber")
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(100, testLogger())
	go bus.Start()
	defer bus.Stop()

	ch := bus.Subscribe(100)
	bus.Unsubscribe(ch)

	bus.Publish(Event{Type: EventLeaseRelease, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	if _, ok := <-ch; ok {
		t.Error("should not receive events after unsubscribe")
	}
}

func TestBusNonBlocking(t *testing.T) {
	bus := NewBus(1, testLogger())
	// Not started: nothing drains the buffer.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventLeaseAck, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked, event bus should be non-blocking")
	}
	if got := bus.Drops(); got != 99 {
		t.Errorf("Drops = %d, want 99", got)
	}
	bus.Stop()
}

func TestBusPublishAfterStop(t *testing.T) {
	bus := NewBus(10, testLogger())
	go bus.Start()
	bus.Stop()
	bus.Stop()

	// Must not panic.
	bus.Publish(Event{Type: EventLeaseAck, Timestamp: time.Now()})
}

func TestEventToEnvVars(t *testing.T) {
	evt := Event{
		Type: EventLeaseAck,
		Lease: &LeaseData{
			MAC:        "aa:bb:cc:dd:ee:ff",
			XID:        "0badf00d",
			IP:         net.IPv4(192, 168, 1, 50),
			ServerID:   net.IPv4(192, 168, 1, 1),
			Routers:    []net.IP{net.IPv4(192, 168, 1, 1)},
			DNSServers: []net.IP{net.IPv4(8, 8, 8, 8), net.IPv4(8, 8, 4, 4)},
			LeaseTime:  3600,
			State:      "success",
		},
	}

	env := evt.ToEnvVars()
	want := map[string]string{
		"LEASECTL_EVENT":       "lease.ack",
		"LEASECTL_MAC":         "aa:bb:cc:dd:ee:ff",
		"LEASECTL_XID":         "0badf00d",
		"LEASECTL_IP":          "192.168.1.50",
		"LEASECTL_SERVER_ID":   "192.168.1.1",
		"LEASECTL_ROUTERS":     "192.168.1.1",
		"LEASECTL_DNS_SERVERS": "8.8.8.8 8.8.4.4",
		"LEASECTL_LEASE_TIME":  "3600",
		"LEASECTL_STATE":       "success",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s = %q, want %q", k, env[k], v)
		}
	}
	if _, ok := env["LEASECTL_DOMAIN"]; ok {
		t.Error("LEASECTL_DOMAIN set for empty domain")
	}
}
