package config

import "time"

// Default configuration values.
const (
	DefaultListenAddress     = "0.0.0.0"
	DefaultClientPort        = 68
	DefaultServerPort        = 67
	DefaultBroadcastAddress  = "255.255.255.255"
	DefaultTimeout           = 10 * time.Second
	DefaultLogLevel          = "info"
	DefaultGracePeriod       = 5 * time.Minute
	DefaultJanitorInterval   = 30 * time.Second
	DefaultHistoryPath       = "/var/lib/leasectl/history.db"
	DefaultAttemptRetention  = 7 * 24 * time.Hour
	DefaultEventBufferSize   = 1000
	DefaultScriptConcurrency = 4
	DefaultScriptTimeout     = 10 * time.Second
	DefaultWebhookTimeout    = 5 * time.Second
	DefaultWebhookRetries    = 3
	DefaultWebhookBackoff    = 2 * time.Second
	DefaultAPIListen         = "127.0.0.1:8068"
)
