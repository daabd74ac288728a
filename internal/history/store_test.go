package history

import (
	"net"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestOpenEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
	if l := store.GetLease("aa:bb:cc:dd:ee:ff"); l != nil {
		t.Errorf("GetLease on empty store = %+v", l)
	}
}

func TestPutAndGetLease(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	err := store.PutLease(&Lease{
		MAC:       "AA:BB:CC:DD:EE:FF",
		IP:        net.IPv4(192, 168, 1, 50),
		ServerID:  net.IPv4(192, 168, 1, 1),
		XID:       "deadbeef",
		LeaseTime: 3600,
		Obtained:  now,
	})
	if err != nil {
		t.Fatalf("PutLease error: %v", err)
	}

	// Lookup is case-insensitive.
	got := store.GetLease("aa:bb:cc:dd:ee:ff")
	if got == nil {
		t.Fatal("GetLease returned nil")
	}
	if !got.IP.Equal(net.IPv4(192, 168, 1, 50)) {
		t.Errorf("IP = %s, want 192.168.1.50", got.IP)
	}
	if !got.ServerID.Equal(net.IPv4(192, 168, 1, 1)) {
		t.Errorf("ServerID = %s, want 192.168.1.1", got.ServerID)
	}
	if !got.Active() {
		t.Error("new lease should be active")
	}

	// Returned value is a copy.
	got.IP[len(got.IP)-1] = 99
	if again := store.GetLease("aa:bb:cc:dd:ee:ff"); again.IP.Equal(got.IP) {
		t.Error("GetLease returned shared storage")
	}
}

func TestPutLeaseReplaces(t *testing.T) {
	store, _ := newTestStore(t)
	for _, last := range []byte{50, 51} {
		if err := store.PutLease(&Lease{
			MAC:      "aa:bb:cc:dd:ee:ff",
			IP:       net.IPv4(192, 168, 1, last),
			ServerID: net.IPv4(192, 168, 1, 1),
			Obtained: time.Now(),
		}); err != nil {
			t.Fatalf("PutLease error: %v", err)
		}
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
	if got := store.GetLease("aa:bb:cc:dd:ee:ff"); !got.IP.Equal(net.IPv4(192, 168, 1, 51)) {
		t.Errorf("IP = %s, want 192.168.1.51", got.IP)
	}
}

func TestMarkReleased(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.MarkReleased("aa:bb:cc:dd:ee:ff", time.Now()); err != nil {
		t.Fatalf("MarkReleased on unknown MAC: %v", err)
	}

	if err := store.PutLease(&Lease{
		MAC:      "aa:bb:cc:dd:ee:ff",
		IP:       net.IPv4(192, 168, 1, 50),
		ServerID: net.IPv4(192, 168, 1, 1),
		Obtained: time.Now(),
	}); err != nil {
		t.Fatalf("PutLease error: %v", err)
	}
	if err := store.MarkReleased("aa:bb:cc:dd:ee:ff", time.Now()); err != nil {
		t.Fatalf("MarkReleased error: %v", err)
	}
	if got := store.GetLease("aa:bb:cc:dd:ee:ff"); got.Active() {
		t.Error("lease still active after MarkReleased")
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := store.PutLease(&Lease{
		MAC:      "00:11:22:33:44:55",
		IP:       net.IPv4(10, 0, 0, 5),
		ServerID: net.IPv4(10, 0, 0, 1),
		Obtained: time.Now(),
	}); err != nil {
		t.Fatalf("PutLease error: %v", err)
	}
	if _, err := store.AddAttempt(&Attempt{MAC: "00:11:22:33:44:55", State: "success", Finished: time.Now()}); err != nil {
		t.Fatalf("AddAttempt error: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	if got := reopened.GetLease("00:11:22:33:44:55"); got == nil || !got.IP.Equal(net.IPv4(10, 0, 0, 5)) {
		t.Errorf("lease after reopen = %+v", got)
	}
	attempts, err := reopened.Attempts("", 0)
	if err != nil {
		t.Fatalf("Attempts error: %v", err)
	}
	if len(attempts) != 1 {
		t.Errorf("attempts after reopen = %d, want 1", len(attempts))
	}
}

func TestAttemptsNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	states := []string{"timed_out", "nak", "success"}
	for i, st := range states {
		mac := "aa:bb:cc:dd:ee:01"
		if i == 1 {
			mac = "aa:bb:cc:dd:ee:02"
		}
		seq, err := store.AddAttempt(&Attempt{MAC: mac, State: st, Finished: time.Now()})
		if err != nil {
			t.Fatalf("AddAttempt error: %v", err)
		}
		if seq != uint64(i+1) {
			t.Errorf("seq = %d, want %d", seq, i+1)
		}
	}

	all, err := store.Attempts("", 0)
	if err != nil {
		t.Fatalf("Attempts error: %v", err)
	}
	if len(all) != 3 || all[0].State != "success" || all[2].State != "timed_out" {
		t.Errorf("attempts order = %v", attemptStates(all))
	}

	one, err := store.Attempts("AA:BB:CC:DD:EE:01", 1)
	if err != nil {
		t.Fatalf("Attempts error: %v", err)
	}
	if len(one) != 1 || one[0].State != "success" {
		t.Errorf("filtered attempts = %v, want [success]", attemptStates(one))
	}
}

func TestPrune(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now()
	store.AddAttempt(&Attempt{MAC: "aa:bb:cc:dd:ee:01", State: "success", Finished: now.Add(-48 * time.Hour)})
	store.AddAttempt(&Attempt{MAC: "aa:bb:cc:dd:ee:01", State: "success", Finished: now})

	n, err := store.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	rest, _ := store.Attempts("", 0)
	if len(rest) != 1 {
		t.Errorf("remaining attempts = %d, want 1", len(rest))
	}
}

func attemptStates(as []*Attempt) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.State
	}
	return out
}

func TestRecordRelease(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.PutLease(&Lease{
		MAC:      "aa:bb:cc:dd:ee:ff",
		IP:       net.IPv4(192, 168, 1, 50),
		ServerID: net.IPv4(192, 168, 1, 1),
		Obtained: time.Now(),
	}); err != nil {
		t.Fatalf("PutLease error: %v", err)
	}

	if err := store.RecordRelease("AA:BB:CC:DD:EE:FF", net.IPv4(192, 168, 1, 50), net.IPv4(192, 168, 1, 1), time.Now()); err != nil {
		t.Fatalf("RecordRelease error: %v", err)
	}
	if got := store.GetLease("aa:bb:cc:dd:ee:ff"); got.Active() {
		t.Error("lease still active after RecordRelease")
	}
	attempts, err := store.Attempts("aa:bb:cc:dd:ee:ff", 0)
	if err != nil {
		t.Fatalf("Attempts error: %v", err)
	}
	if len(attempts) != 1 || attempts[0].State != "released" {
		t.Errorf("attempts = %v, want [released]", attemptStates(attempts))
	}
}
