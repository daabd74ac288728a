package events

import (
	"log/slog"
	"strings"
	"time"
)

// Dispatcher routes events from the bus to script hooks and webhooks.
// Hook failures never propagate back to the lease session that raised
// the event.
type Dispatcher struct {
	bus         *Bus
	scripts     *ScriptRunner
	webhooks    *WebhookSender
	logger      *slog.Logger
	scriptCfgs  []ScriptConfig
	webhookCfgs []WebhookConfig
	ch          chan Event
	done        chan struct{}
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(bus *Bus, logger *slog.Logger, scriptConcurrency int, webhookTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		scripts:  NewScriptRunner(scriptConcurrency, logger),
		webhooks: NewWebhookSender(webhookTimeout, logger),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// AddScript registers a script hook.
func (d *Dispatcher) AddScript(cfg ScriptConfig) {
	d.scriptCfgs = append(d.scriptCfgs, cfg)
}

// AddWebhook registers a webhook hook.
func (d *Dispatcher) AddWebhook(cfg WebhookConfig) {
	d.webhookCfgs = append(d.webhookCfgs, cfg)
}

// Subscribe attaches the dispatcher to the bus. It must be called before
// Start and before any event that should reach the hooks is published.
func (d *Dispatcher) Subscribe() {
	if d.ch == nil {
		d.ch = d.bus.Subscribe(1000)
	}
}

// Start begins dispatching. Call in a goroutine.
func (d *Dispatcher) Start() {
	d.Subscribe()

	d.logger.Info("event dispatcher started",
		"script_hooks", len(d.scriptCfgs),
		"webhook_hooks", len(d.webhookCfgs))

	for {
		select {
		case evt, ok := <-d.ch:
			if !ok {
				return
			}
			d.dispatch(evt)
		case <-d.done:
			return
		}
	}
}

// Stop shuts down the dispatcher and waits for pending hooks.
func (d *Dispatcher) Stop() {
	close(d.done)
	if d.ch != nil {
		d.bus.Unsubscribe(d.ch)
	}
	d.scripts.Wait()
	d.webhooks.Wait()
	d.logger.Info("event dispatcher stopped")
}

// Publish routes evt to matching hooks without going through the bus.
// One-shot commands use it so that Stop waits for every hook the run
// triggered.
func (d *Dispatcher) Publish(evt Event) {
	d.dispatch(evt)
}

// dispatch routes a single event to matching hooks.
func (d *Dispatcher) dispatch(evt Event) {
	evtType := string(evt.Type)

	for _, cfg := range d.scriptCfgs {
		if matchesEvent(cfg.Events, evtType) && matchesMAC(cfg.MACs, evt) {
			d.scripts.Run(cfg, evt)
		}
	}

	for _, cfg := range d.webhookCfgs {
		if matchesEvent(cfg.Events, evtType) {
			d.webhooks.Send(cfg, evt)
		}
	}
}

// matchesEvent checks if the event type matches any of the configured patterns.
// Supports exact match and wildcard patterns (e.g., "lease.*", "*").
func matchesEvent(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true // No filter = match all
	}
	for _, p := range patterns {
		if p == "*" || p == eventType {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}

// matchesMAC checks the event's hardware address against a hook's MAC
// filter. Comparison is case-insensitive.
func matchesMAC(macs []string, evt Event) bool {
	if len(macs) == 0 || evt.Lease == nil || evt.Lease.MAC == "" {
		return true
	}
	for _, m := range macs {
		if strings.EqualFold(m, evt.Lease.MAC) {
			return true
		}
	}
	return false
}
