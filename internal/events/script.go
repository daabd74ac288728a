package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/leasectl/leasectl/internal/metrics"
)

// ScriptRunner executes script hooks in a bounded goroutine pool.
type ScriptRunner struct {
	logger *slog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
}

// ScriptConfig describes a single script hook binding.
type ScriptConfig struct {
	Name    string
	Events  []string
	Command string
	Timeout time.Duration
	MACs    []string // Optional hardware address filter
}

// NewScriptRunner creates a new script runner with the given concurrency limit.
func NewScriptRunner(concurrency int, logger *slog.Logger) *ScriptRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ScriptRunner{
		logger: logger,
		sem:    make(chan struct{}, concurrency),
	}
}

// Run executes a script hook for the given event in a goroutine. The
// script receives the lease as LEASECTL_* environment variables and the
// event as JSON on stdin.
func (r *ScriptRunner) Run(cfg ScriptConfig, evt Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		default:
			r.logger.Warn("script hook pool full, dropping execution",
				"hook_name", cfg.Name,
				"event", string(evt.Type))
			return
		}

		r.execute(cfg, evt)
	}()
}

func (r *ScriptRunner) execute(cfg ScriptConfig, evt Event) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command)

	envVars := evt.ToEnvVars()
	envVars["LEASECTL_HOOK_NAME"] = cfg.Name
	env := os.Environ()
	for k, v := range envVars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	jsonData, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("failed to marshal event for script stdin",
			"hook_name", cfg.Name,
			"error", err)
		return
	}
	cmd.Stdin = bytes.NewReader(jsonData)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)
	metrics.HookDuration.WithLabelValues("script").Observe(duration.Seconds())

	if err != nil {
		metrics.HookExecutions.WithLabelValues("script", "error").Inc()
		if ctx.Err() == context.DeadlineExceeded {
			r.logger.Error("script hook timed out, killed",
				"hook_name", cfg.Name,
				"command", cfg.Command,
				"timeout", timeout.String(),
				"event", string(evt.Type))
			return
		}
		r.logger.Error("script hook failed",
			"hook_name", cfg.Name,
			"command", cfg.Command,
			"error", err,
			"stderr", stderr.String(),
			"duration", duration.String(),
			"event", string(evt.Type))
		return
	}

	metrics.HookExecutions.WithLabelValues("script", "success").Inc()
	r.logger.Debug("script hook completed",
		"hook_name", cfg.Name,
		"duration", duration.String(),
		"event", string(evt.Type))
}

// Wait blocks until all running scripts complete.
func (r *ScriptRunner) Wait() {
	r.wg.Wait()
}
