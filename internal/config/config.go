// Package config handles TOML configuration parsing and validation for leasectl.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/leasectl/leasectl/internal/events"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// Config is the top-level configuration structure.
type Config struct {
	Client   ClientConfig   `toml:"client"`
	Registry RegistryConfig `toml:"registry"`
	History  HistoryConfig  `toml:"history"`
	Hooks    HooksConfig    `toml:"hooks"`
	API      APIConfig      `toml:"api"`
}

// ClientConfig holds DHCP client transport and exchange settings.
type ClientConfig struct {
	Interface        string `toml:"interface"`
	ListenAddress    string `toml:"listen_address"`
	ClientPort       int    `toml:"client_port"`
	ServerPort       int    `toml:"server_port"`
	BroadcastAddress string `toml:"broadcast_address"`
	Timeout          string `toml:"timeout"`
	TTL              int    `toml:"ttl"`
	LogLevel         string `toml:"log_level"`
	ParameterRequest []int  `toml:"parameter_request_list"`
}

// RegistryConfig holds background lease task settings.
type RegistryConfig struct {
	GracePeriod     string `toml:"grace_period"`
	JanitorInterval string `toml:"janitor_interval"`
}

// HistoryConfig holds lease history database settings.
type HistoryConfig struct {
	Enabled          bool   `toml:"enabled"`
	Path             string `toml:"path"`
	AttemptRetention string `toml:"attempt_retention"`
}

// HooksConfig holds event hook settings.
type HooksConfig struct {
	EventBufferSize   int           `toml:"event_buffer_size"`
	ScriptConcurrency int           `toml:"script_concurrency"`
	ScriptTimeout     string        `toml:"script_timeout"`
	WebhookTimeout    string        `toml:"webhook_timeout"`
	Scripts           []ScriptHook  `toml:"script"`
	Webhooks          []WebhookHook `toml:"webhook"`
}

// ScriptHook defines a script hook.
type ScriptHook struct {
	Name    string   `toml:"name"`
	Events  []string `toml:"events"`
	Command string   `toml:"command"`
	Timeout string   `toml:"timeout"`
	MACs    []string `toml:"macs"`
}

// WebhookHook defines a webhook hook.
type WebhookHook struct {
	Name         string            `toml:"name"`
	Events       []string          `toml:"events"`
	URL          string            `toml:"url"`
	Method       string            `toml:"method"`
	Headers      map[string]string `toml:"headers"`
	Retries      int               `toml:"retries"`
	RetryBackoff string            `toml:"retry_backoff"`
	Secret       string            `toml:"secret"`
	Template     string            `toml:"template"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Enabled bool          `toml:"enabled"`
	Listen  string        `toml:"listen"`
	Auth    APIAuthConfig `toml:"auth"`
}

// APIAuthConfig holds auth settings. With neither a token nor users the
// API is open.
type APIAuthConfig struct {
	AuthToken string       `toml:"auth_token"`
	Users     []UserConfig `toml:"users"`
}

// UserConfig holds an API user authenticated with HTTP basic auth.
type UserConfig struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied, for use
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Client.ListenAddress == "" {
		cfg.Client.ListenAddress = DefaultListenAddress
	}
	if cfg.Client.ClientPort == 0 {
		cfg.Client.ClientPort = DefaultClientPort
	}
	if cfg.Client.ServerPort == 0 {
		cfg.Client.ServerPort = DefaultServerPort
	}
	if cfg.Client.BroadcastAddress == "" {
		cfg.Client.BroadcastAddress = DefaultBroadcastAddress
	}
	if cfg.Client.Timeout == "" {
		cfg.Client.Timeout = DefaultTimeout.String()
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = DefaultLogLevel
	}

	// Registry defaults
	if cfg.Registry.GracePeriod == "" {
		cfg.Registry.GracePeriod = DefaultGracePeriod.String()
	}
	if cfg.Registry.JanitorInterval == "" {
		cfg.Registry.JanitorInterval = DefaultJanitorInterval.String()
	}

	// History defaults
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.History.AttemptRetention == "" {
		cfg.History.AttemptRetention = DefaultAttemptRetention.String()
	}

	// Hooks defaults
	if cfg.Hooks.EventBufferSize == 0 {
		cfg.Hooks.EventBufferSize = DefaultEventBufferSize
	}
	if cfg.Hooks.ScriptConcurrency == 0 {
		cfg.Hooks.ScriptConcurrency = DefaultScriptConcurrency
	}
	if cfg.Hooks.ScriptTimeout == "" {
		cfg.Hooks.ScriptTimeout = DefaultScriptTimeout.String()
	}
	if cfg.Hooks.WebhookTimeout == "" {
		cfg.Hooks.WebhookTimeout = DefaultWebhookTimeout.String()
	}
	for i := range cfg.Hooks.Webhooks {
		if cfg.Hooks.Webhooks[i].Method == "" {
			cfg.Hooks.Webhooks[i].Method = "POST"
		}
		if cfg.Hooks.Webhooks[i].Retries == 0 {
			cfg.Hooks.Webhooks[i].Retries = DefaultWebhookRetries
		}
		if cfg.Hooks.Webhooks[i].RetryBackoff == "" {
			cfg.Hooks.Webhooks[i].RetryBackoff = DefaultWebhookBackoff.String()
		}
	}

	// API defaults
	if cfg.API.Listen == "" {
		cfg.API.Listen = DefaultAPIListen
	}
}

func validate(cfg *Config) error {
	for _, f := range []struct{ name, value string }{
		{"client.listen_address", cfg.Client.ListenAddress},
		{"client.broadcast_address", cfg.Client.BroadcastAddress},
	} {
		if ip := net.ParseIP(f.value); ip == nil || ip.To4() == nil {
			return fmt.Errorf("%s %q is not a valid IPv4 address", f.name, f.value)
		}
	}
	if cfg.Client.ClientPort < 0 || cfg.Client.ClientPort > 65535 {
		return fmt.Errorf("client.client_port %d out of range", cfg.Client.ClientPort)
	}
	if cfg.Client.ServerPort < 1 || cfg.Client.ServerPort > 65535 {
		return fmt.Errorf("client.server_port %d out of range", cfg.Client.ServerPort)
	}
	if cfg.Client.TTL < 0 || cfg.Client.TTL > 255 {
		return fmt.Errorf("client.ttl %d out of range", cfg.Client.TTL)
	}
	for _, code := range cfg.Client.ParameterRequest {
		if code < 1 || code > 254 {
			return fmt.Errorf("client.parameter_request_list: option code %d out of range", code)
		}
	}

	durations := []struct{ name, value string }{
		{"client.timeout", cfg.Client.Timeout},
		{"registry.grace_period", cfg.Registry.GracePeriod},
		{"registry.janitor_interval", cfg.Registry.JanitorInterval},
		{"history.attempt_retention", cfg.History.AttemptRetention},
		{"hooks.script_timeout", cfg.Hooks.ScriptTimeout},
		{"hooks.webhook_timeout", cfg.Hooks.WebhookTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	// Validate hooks
	for i, s := range cfg.Hooks.Scripts {
		if s.Command == "" {
			return fmt.Errorf("hooks.script[%d]: command is required", i)
		}
		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				return fmt.Errorf("hooks.script[%d].timeout: %w", i, err)
			}
		}
	}
	for i, w := range cfg.Hooks.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("hooks.webhook[%d]: url is required", i)
		}
		if _, err := time.ParseDuration(w.RetryBackoff); err != nil {
			return fmt.Errorf("hooks.webhook[%d].retry_backoff: %w", i, err)
		}
		if w.Template != "" && w.Template != "slack" {
			return fmt.Errorf("hooks.webhook[%d].template must be \"slack\" or empty, got %q", i, w.Template)
		}
	}

	// Validate API
	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fmt.Errorf("api.listen %q: %w", cfg.API.Listen, err)
		}
	}
	for i, u := range cfg.API.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("api.auth.users[%d]: username and password_hash are required", i)
		}
	}

	return nil
}

// ParseDuration parses a duration string such as "10s" or "5m".
func ParseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

// mustDuration parses a value that validate has already accepted, falling
// back to def for an unvalidated Config.
func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Transport returns the transport settings for client sessions.
func (cfg *Config) Transport() transport.Config {
	tc := transport.DefaultConfig()
	tc.Interface = cfg.Client.Interface
	if ip := net.ParseIP(cfg.Client.ListenAddress).To4(); ip != nil {
		tc.ListenAddress = ip
	}
	if ip := net.ParseIP(cfg.Client.BroadcastAddress).To4(); ip != nil {
		tc.BroadcastAddress = ip
	}
	tc.ClientPort = cfg.Client.ClientPort
	if cfg.Client.ServerPort != 0 {
		tc.ServerPort = cfg.Client.ServerPort
	}
	tc.TTL = cfg.Client.TTL
	return tc
}

// Timeout returns the per-step receive timeout.
func (cfg *Config) Timeout() time.Duration {
	return mustDuration(cfg.Client.Timeout, DefaultTimeout)
}

// ParameterRequestList returns the configured option codes, or nil for the
// built-in list.
func (cfg *Config) ParameterRequestList() []dhcpv4.OptionCode {
	if len(cfg.Client.ParameterRequest) == 0 {
		return nil
	}
	codes := make([]dhcpv4.OptionCode, len(cfg.Client.ParameterRequest))
	for i, c := range cfg.Client.ParameterRequest {
		codes[i] = dhcpv4.OptionCode(c)
	}
	return codes
}

// GracePeriod returns how long completed tasks stay visible.
func (cfg *Config) GracePeriod() time.Duration {
	return mustDuration(cfg.Registry.GracePeriod, DefaultGracePeriod)
}

// JanitorInterval returns how often completed tasks are swept.
func (cfg *Config) JanitorInterval() time.Duration {
	return mustDuration(cfg.Registry.JanitorInterval, DefaultJanitorInterval)
}

// AttemptRetention returns how long attempt records are kept.
func (cfg *Config) AttemptRetention() time.Duration {
	return mustDuration(cfg.History.AttemptRetention, DefaultAttemptRetention)
}

// WebhookTimeout returns the HTTP client timeout for webhooks.
func (cfg *Config) WebhookTimeout() time.Duration {
	return mustDuration(cfg.Hooks.WebhookTimeout, DefaultWebhookTimeout)
}

// ScriptConfigs converts the configured script hooks.
func (cfg *Config) ScriptConfigs() []events.ScriptConfig {
	def := mustDuration(cfg.Hooks.ScriptTimeout, DefaultScriptTimeout)
	out := make([]events.ScriptConfig, 0, len(cfg.Hooks.Scripts))
	for _, s := range cfg.Hooks.Scripts {
		out = append(out, events.ScriptConfig{
			Name:    s.Name,
			Events:  s.Events,
			Command: s.Command,
			Timeout: mustDuration(s.Timeout, def),
			MACs:    s.MACs,
		})
	}
	return out
}

// WebhookConfigs converts the configured webhook hooks.
func (cfg *Config) WebhookConfigs() []events.WebhookConfig {
	out := make([]events.WebhookConfig, 0, len(cfg.Hooks.Webhooks))
	for _, w := range cfg.Hooks.Webhooks {
		out = append(out, events.WebhookConfig{
			Name:         w.Name,
			Events:       w.Events,
			URL:          w.URL,
			Method:       w.Method,
			Headers:      w.Headers,
			Retries:      w.Retries,
			RetryBackoff: mustDuration(w.RetryBackoff, DefaultWebhookBackoff),
			Secret:       w.Secret,
			Template:     w.Template,
		})
	}
	return out
}
