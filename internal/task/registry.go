// Package task runs lease requests in the background and keeps their
// outcome available for polling until a grace period after completion.
package task

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/leasectl/leasectl/internal/client"
	"github.com/leasectl/leasectl/internal/dhcp"
	"github.com/leasectl/leasectl/internal/metrics"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Default timings.
const (
	DefaultGracePeriod     = 5 * time.Minute
	DefaultJanitorInterval = 30 * time.Second
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("task registry stopped")

// SessionFunc opens a session for a hardware address.
type SessionFunc func(mac string) (*client.Session, error)

// Task is a snapshot of one lease request.
type Task struct {
	ID        string          `json:"id"`
	MAC       string          `json:"mac"`
	State     client.State    `json:"state"`
	XID       string          `json:"xid,omitempty"`
	IP        net.IP          `json:"ip,omitempty"`
	ServerID  net.IP          `json:"server_id,omitempty"`
	Lease     *dhcp.LeaseInfo `json:"lease,omitempty"`
	Error     string          `json:"error,omitempty"`
	Created   time.Time       `json:"created"`
	Completed *time.Time      `json:"completed,omitempty"`
}

// Done reports whether the task has finished and its outcome is final.
func (t Task) Done() bool {
	return t.Completed != nil
}

type entry struct {
	id        string
	mac       string
	session   *client.Session
	state     client.State // used when session is nil
	err       error
	created   time.Time
	completed time.Time
}

// Registry owns background lease tasks. Use NewRegistry; the zero value
// is not usable.
type Registry struct {
	open       SessionFunc
	grace      time.Duration
	interval   time.Duration
	onComplete func(Task)
	logger     *slog.Logger

	mu      sync.RWMutex
	tasks   map[string]*entry
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithGracePeriod sets how long completed tasks stay visible.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithJanitorInterval sets how often completed tasks are swept.
func WithJanitorInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithCompletionHook registers fn to run once per task when it finishes.
func WithCompletionHook(fn func(Task)) Option {
	return func(r *Registry) { r.onComplete = fn }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a registry that opens sessions with open.
func NewRegistry(open SessionFunc, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		open:     open,
		grace:    DefaultGracePeriod,
		interval: DefaultJanitorInterval,
		logger:   slog.Default(),
		tasks:    make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit starts a lease request for mac and returns its task id. A bind
// failure still yields a task, completed in the bind_error state; only an
// unparseable MAC is rejected outright.
func (r *Registry) Submit(mac string) (string, error) {
	if _, err := dhcpv4.ParseMAC(mac); err != nil {
		return "", err
	}
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("generating task id: %w", err)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return "", ErrStopped
	}
	e := &entry{id: id, mac: mac, state: client.StateInitializing, created: time.Now()}
	r.tasks[id] = e
	metrics.TasksTracked.Set(float64(len(r.tasks)))
	r.wg.Add(1)
	r.mu.Unlock()

	session, err := r.open(mac)
	if err != nil {
		r.complete(e, client.StateBindError, err)
		r.wg.Done()
		var be *transport.BindError
		if !errors.As(err, &be) {
			r.logger.Warn("lease task could not start", "task_id", id, "mac", mac, "error", err)
		}
		return id, nil
	}

	r.mu.Lock()
	e.session = session
	r.mu.Unlock()

	metrics.TasksActive.Inc()
	go func() {
		defer r.wg.Done()
		defer metrics.TasksActive.Dec()
		_, err := session.RequestLease(r.ctx)
		r.complete(e, session.State(), err)
	}()

	r.logger.Debug("lease task submitted", "task_id", id, "mac", mac)
	return id, nil
}

func (r *Registry) complete(e *entry, state client.State, err error) {
	r.mu.Lock()
	e.state = state
	e.err = err
	e.completed = time.Now()
	t := r.snapshot(e)
	r.mu.Unlock()

	r.logger.Info("lease task finished",
		"task_id", t.ID,
		"mac", t.MAC,
		"state", t.State.String(),
		"ip", t.IP.String())

	if r.onComplete != nil {
		r.onComplete(t)
	}
}

// Get returns a snapshot of the task with the given id.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return r.snapshot(e), true
}

// List returns snapshots of all tracked tasks, oldest first.
func (r *Registry) List() []Task {
	r.mu.RLock()
	out := make([]Task, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, r.snapshot(e))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// snapshot must be called with r.mu held.
func (r *Registry) snapshot(e *entry) Task {
	t := Task{
		ID:      e.id,
		MAC:     e.mac,
		State:   e.state,
		Created: e.created,
	}
	if e.session != nil {
		info := e.session.Info()
		t.MAC = info.MAC
		t.State = info.State
		if info.XID != 0 {
			t.XID = fmt.Sprintf("%08x", info.XID)
		}
		t.IP = info.Assigned
		if t.IP == nil {
			t.IP = info.Offered
		}
		t.ServerID = info.ServerID
		t.Lease = info.Lease
	}
	if e.err != nil {
		t.Error = e.err.Error()
	}
	if !e.completed.IsZero() {
		c := e.completed
		t.Completed = &c
	}
	return t
}

// Start runs the janitor until ctx is cancelled or Stop is called.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if n := r.Evict(time.Now()); n > 0 {
					r.logger.Debug("evicted completed lease tasks", "count", n)
				}
			}
		}
	}()
}

// Evict removes tasks that completed more than the grace period before now.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.tasks {
		if e.completed.IsZero() || now.Sub(e.completed) < r.grace {
			continue
		}
		delete(r.tasks, id)
		n++
	}
	if n > 0 {
		metrics.TasksEvicted.Add(float64(n))
		metrics.TasksTracked.Set(float64(len(r.tasks)))
	}
	return n
}

// Stop cancels running tasks, stops the janitor and waits for both.
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
