// leasectl is a DHCPv4 client that obtains and releases leases on behalf of
// arbitrary hardware addresses, as a one-shot command or an HTTP daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leasectl/leasectl/internal/api"
	"github.com/leasectl/leasectl/internal/client"
	"github.com/leasectl/leasectl/internal/config"
	"github.com/leasectl/leasectl/internal/events"
	"github.com/leasectl/leasectl/internal/history"
	"github.com/leasectl/leasectl/internal/logging"
	"github.com/leasectl/leasectl/internal/metrics"
	"github.com/leasectl/leasectl/internal/task"
	"github.com/leasectl/leasectl/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "/etc/leasectl/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	mac := flag.String("mac", "", "request a lease for this hardware address and exit")
	release := flag.Bool("release", false, "release the lease held by -mac instead of requesting one")
	ip := flag.String("ip", "", "leased address to release (default: from lease history)")
	serverID := flag.String("server-id", "", "server identifier to release to (default: from lease history)")
	iface := flag.String("interface", "", "bind to this network interface (overrides config)")
	timeout := flag.Duration("timeout", 0, "per-step receive timeout (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("leasectl", version)
		return
	}

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	cfg, err := loadConfig(*configPath, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if *iface != "" {
		cfg.Client.Interface = *iface
	}
	if *timeout > 0 {
		cfg.Client.Timeout = timeout.String()
	}
	if *logLevel != "" {
		cfg.Client.LogLevel = *logLevel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch {
	case *release:
		if *mac == "" {
			fmt.Fprintln(os.Stderr, "error: -release requires -mac")
			os.Exit(2)
		}
		logger := logging.Setup(cfg.Client.LogLevel, logging.FormatText, os.Stderr)
		code = runRelease(ctx, cfg, logger, *mac, *ip, *serverID)
	case *mac != "":
		logger := logging.Setup(cfg.Client.LogLevel, logging.FormatText, os.Stderr)
		code = runOnce(ctx, cfg, logger, *mac)
	default:
		logger := logging.Setup(cfg.Client.LogLevel, logging.FormatJSON, os.Stdout)
		code = runDaemon(ctx, cfg, logger)
	}
	stop()
	os.Exit(code)
}

// loadConfig reads path. A missing file at the default location selects
// the built-in defaults; an explicitly named file must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// newDispatcher builds the hook dispatcher, or returns nil when no hooks
// are configured.
func newDispatcher(cfg *config.Config, bus *events.Bus, logger *slog.Logger) *events.Dispatcher {
	scripts := cfg.ScriptConfigs()
	webhooks := cfg.WebhookConfigs()
	if len(scripts) == 0 && len(webhooks) == 0 {
		return nil
	}
	d := events.NewDispatcher(bus, logger, cfg.Hooks.ScriptConcurrency, cfg.WebhookTimeout())
	for _, s := range scripts {
		d.AddScript(s)
	}
	for _, w := range webhooks {
		d.AddWebhook(w)
	}
	return d
}

// clientOptions returns the session options shared by every mode.
func clientOptions(cfg *config.Config, logger *slog.Logger, pub events.Publisher) []client.Option {
	opts := []client.Option{
		client.WithOpener(transport.NewOpener(cfg.Transport(), logger)),
		client.WithTimeout(cfg.Timeout()),
		client.WithLogger(logger),
	}
	if pub != nil {
		opts = append(opts, client.WithPublisher(pub))
	}
	if prl := cfg.ParameterRequestList(); prl != nil {
		opts = append(opts, client.WithParameterRequestList(prl))
	}
	return opts
}

func sessionFunc(opts []client.Option) task.SessionFunc {
	return func(mac string) (*client.Session, error) {
		return client.Open(mac, opts...)
	}
}

// recordTask writes a finished task to the lease history.
func recordTask(store *history.Store, t task.Task, logger *slog.Logger) {
	if store == nil {
		return
	}
	finished := time.Now()
	if t.Completed != nil {
		finished = *t.Completed
	}

	if _, err := store.AddAttempt(&history.Attempt{
		TaskID:   t.ID,
		MAC:      t.MAC,
		State:    t.State.String(),
		IP:       t.IP,
		ServerID: t.ServerID,
		Error:    t.Error,
		Started:  t.Created,
		Finished: finished,
	}); err != nil {
		logger.Warn("failed to record lease attempt", "mac", t.MAC, "error", err)
	}

	if t.State != client.StateSuccess {
		return
	}
	l := &history.Lease{
		MAC:      t.MAC,
		IP:       t.IP,
		ServerID: t.ServerID,
		XID:      t.XID,
		Obtained: finished,
	}
	if t.Lease != nil {
		l.LeaseTime = int64(t.Lease.LeaseTime / time.Second)
	}
	if err := store.PutLease(l); err != nil {
		logger.Warn("failed to record lease", "mac", t.MAC, "error", err)
	}
}

// openHistory opens the lease history when enabled. In one-shot modes a
// failure to open is logged and the run continues without history.
func openHistory(cfg *config.Config, logger *slog.Logger, required bool) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		if required {
			return nil, err
		}
		logger.Warn("lease history unavailable", "path", cfg.History.Path, "error", err)
		return nil, nil
	}
	logger.Debug("lease history opened", "path", cfg.History.Path, "lease_count", store.Count())
	return store, nil
}

// runOnce obtains a single lease, prints the outcome as JSON and returns
// the process exit code.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, mac string) int {
	store, _ := openHistory(cfg, logger, false)
	if store != nil {
		defer store.Close()
	}

	var pub events.Publisher
	if d := newDispatcher(cfg, nil, logger); d != nil {
		pub = d
		defer d.Stop()
	}

	done := make(chan task.Task, 1)
	reg := task.NewRegistry(sessionFunc(clientOptions(cfg, logger, pub)),
		task.WithLogger(logger),
		task.WithCompletionHook(func(t task.Task) {
			recordTask(store, t, logger)
			done <- t
		}))
	defer reg.Stop()

	if _, err := reg.Submit(mac); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	var result task.Task
	select {
	case result = <-done:
	case <-ctx.Done():
		reg.Stop()
		result = <-done
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)

	if result.State != client.StateSuccess {
		return 1
	}
	return 0
}

// runRelease sends a DHCPRELEASE for mac and returns the process exit code.
func runRelease(ctx context.Context, cfg *config.Config, logger *slog.Logger, mac, ip, serverID string) int {
	store, _ := openHistory(cfg, logger, false)
	if store != nil {
		defer store.Close()
	}

	if ip == "" || serverID == "" {
		var last *history.Lease
		if store != nil {
			last = store.GetLease(mac)
		}
		if last == nil {
			fmt.Fprintf(os.Stderr, "error: no recorded lease for %s; pass -ip and -server-id\n", mac)
			return 2
		}
		if ip == "" {
			ip = last.IP.String()
		}
		if serverID == "" {
			serverID = last.ServerID.String()
		}
	}

	var pub events.Publisher
	if d := newDispatcher(cfg, nil, logger); d != nil {
		pub = d
		defer d.Stop()
	}

	if err := client.Release(ctx, mac, ip, serverID, clientOptions(cfg, logger, pub)...); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if store != nil {
		if err := store.RecordRelease(mac, net.ParseIP(ip).To4(), net.ParseIP(serverID).To4(), time.Now()); err != nil {
			logger.Warn("failed to record release", "mac", mac, "error", err)
		}
	}
	return 0
}

// runDaemon serves the HTTP API until ctx is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	if !cfg.API.Enabled {
		logger.Error("daemon mode requires api.enabled = true; use -mac for a one-shot request")
		return 2
	}
	logger.Info("leasectl starting",
		"version", version,
		"interface", cfg.Client.Interface,
		"api", cfg.API.Listen)

	metrics.BuildInfo.WithLabelValues(version).Set(1)
	metrics.StartTime.SetToCurrentTime()

	store, err := openHistory(cfg, logger, true)
	if err != nil {
		logger.Error("failed to open lease history", "error", err)
		return 1
	}
	if store != nil {
		defer store.Close()
		go pruneLoop(ctx, store, cfg.AttemptRetention(), logger)
	}

	// Initialize event bus
	bus := events.NewBus(cfg.Hooks.EventBufferSize, logger)
	go bus.Start()
	defer bus.Stop()

	if d := newDispatcher(cfg, bus, logger); d != nil {
		d.Subscribe()
		go d.Start()
		defer d.Stop()
	}

	reg := task.NewRegistry(sessionFunc(clientOptions(cfg, logger, bus)),
		task.WithLogger(logger),
		task.WithGracePeriod(cfg.GracePeriod()),
		task.WithJanitorInterval(cfg.JanitorInterval()),
		task.WithCompletionHook(func(t task.Task) { recordTask(store, t, logger) }))
	reg.Start(ctx)
	defer reg.Stop()

	apiOpts := []api.ServerOption{
		api.WithVersion(version),
		api.WithReleaser(func(ctx context.Context, mac, ip, serverID string) error {
			return client.Release(ctx, mac, ip, serverID, clientOptions(cfg, logger, bus)...)
		}),
	}
	if store != nil {
		apiOpts = append(apiOpts, api.WithHistory(store))
	}
	apiServer := api.NewServer(cfg.API, reg, logger, apiOpts...)
	ln, err := apiServer.Listen()
	if err != nil {
		logger.Error("failed to start API server", "error", err)
		return 1
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- apiServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("API server failed", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("API server shutdown", "error", err)
	}

	logger.Info("leasectl stopped")
	return 0
}

// pruneLoop removes lease attempts older than retention once an hour.
func pruneLoop(ctx context.Context, store *history.Store, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(time.Now().Add(-retention))
			if err != nil {
				logger.Warn("pruning lease attempts", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("pruned lease attempts", "count", n)
			}
		}
	}
}
