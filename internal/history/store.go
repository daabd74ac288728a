// Package history persists obtained leases and lease attempts in BoltDB so
// that a lease can later be released by hardware address alone.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltDB bucket names.
var (
	bucketLeases   = []byte("leases")
	bucketAttempts = []byte("attempts")
)

// Lease is the last lease obtained for a hardware address.
type Lease struct {
	MAC       string     `json:"mac"`
	IP        net.IP     `json:"ip"`
	ServerID  net.IP     `json:"server_id"`
	XID       string     `json:"xid,omitempty"`
	LeaseTime int64      `json:"lease_time"` // seconds, 0 if the server sent none
	Obtained  time.Time  `json:"obtained"`
	Released  *time.Time `json:"released,omitempty"`
}

// Active reports whether the lease has not been released.
func (l *Lease) Active() bool {
	return l.Released == nil
}

// Clone returns a deep copy.
func (l *Lease) Clone() *Lease {
	c := *l
	c.IP = append(net.IP(nil), l.IP...)
	c.ServerID = append(net.IP(nil), l.ServerID...)
	if l.Released != nil {
		r := *l.Released
		c.Released = &r
	}
	return &c
}

// Attempt records the outcome of one lease request.
type Attempt struct {
	Seq      uint64    `json:"seq"`
	TaskID   string    `json:"task_id,omitempty"`
	MAC      string    `json:"mac"`
	State    string    `json:"state"`
	IP       net.IP    `json:"ip,omitempty"`
	ServerID net.IP    `json:"server_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Store provides lease history persistence via BoltDB with an in-memory
// index of leases by MAC.
type Store struct {
	db    *bolt.DB
	mu    sync.RWMutex
	byMAC map[string]*Lease
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening history database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketLeases, bucketAttempts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database buckets: %w", err)
	}

	s := &Store{db: db, byMAC: make(map[string]*Lease)}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading lease history: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadAll() error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLeases).ForEach(func(k, v []byte) error {
			l := &Lease{}
			if err := json.Unmarshal(v, l); err != nil {
				return fmt.Errorf("unmarshalling lease %s: %w", k, err)
			}
			s.byMAC[string(k)] = l
			return nil
		})
	})
}

func macKey(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// PutLease records l as the current lease for its MAC, replacing any
// earlier one.
func (s *Store) PutLease(l *Lease) error {
	key := macKey(l.MAC)
	stored := l.Clone()
	stored.MAC = key

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshalling lease for %s: %w", key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketLeases).Put([]byte(key), data); err != nil {
			return fmt.Errorf("writing lease for %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.byMAC[key] = stored
	s.mu.Unlock()
	return nil
}

// GetLease returns the last lease recorded for mac, or nil.
func (s *Store) GetLease(mac string) *Lease {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byMAC[macKey(mac)]
	if !ok {
		return nil
	}
	return l.Clone()
}

// MarkReleased stamps the lease for mac as released at the given time.
// It is a no-op when no lease is recorded.
func (s *Store) MarkReleased(mac string, at time.Time) error {
	l := s.GetLease(mac)
	if l == nil {
		return nil
	}
	l.Released = &at
	return s.PutLease(l)
}

// RecordRelease marks the lease for mac released and appends a released
// attempt to the log.
func (s *Store) RecordRelease(mac string, ip, serverID net.IP, at time.Time) error {
	if err := s.MarkReleased(mac, at); err != nil {
		return err
	}
	_, err := s.AddAttempt(&Attempt{
		MAC:      mac,
		State:    "released",
		IP:       ip,
		ServerID: serverID,
		Started:  at,
		Finished: at,
	})
	return err
}

// Leases returns all recorded leases sorted by MAC.
func (s *Store) Leases() []*Lease {
	s.mu.RLock()
	out := make([]*Lease, 0, len(s.byMAC))
	for _, l := range s.byMAC {
		out = append(out, l.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Count returns the number of recorded leases.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byMAC)
}

// AddAttempt appends a to the attempt log and returns its sequence number.
func (s *Store) AddAttempt(a *Attempt) (uint64, error) {
	a.MAC = macKey(a.MAC)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating attempt sequence: %w", err)
		}
		a.Seq = seq
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshalling attempt: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, err
	}
	return a.Seq, nil
}

// Attempts returns up to limit attempts, newest first. An empty mac
// matches every attempt; limit <= 0 means no limit.
func (s *Store) Attempts(mac string, limit int) ([]*Attempt, error) {
	mac = macKey(mac)
	var out []*Attempt
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAttempts).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			a := &Attempt{}
			if err := json.Unmarshal(v, a); err != nil {
				return fmt.Errorf("unmarshalling attempt %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if mac != "" && a.MAC != mac {
				continue
			}
			out = append(out, a)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes attempts that finished before cutoff and returns how many
// were removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			a := &Attempt{}
			if err := json.Unmarshal(v, a); err != nil {
				return nil
			}
			if a.Finished.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("deleting attempt: %w", err)
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
