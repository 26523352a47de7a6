package client

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every knob the client needs. Construct it once and share it;
// a different configuration requires a new client instance.
type Config struct {
	BaseURL           string        `envconfig:"FARACORE_BASE_URL" default:"http://127.0.0.1:8000"`
	Token             string        `envconfig:"FARACORE_TOKEN"`
	Timeout           time.Duration `envconfig:"FARACORE_TIMEOUT" default:"5s"`
	MaxRetries        int           `envconfig:"FARACORE_MAX_RETRIES" default:"3"`
	RetryBackoff      time.Duration `envconfig:"FARACORE_RETRY_BACKOFF" default:"500ms"`
	RetryableStatuses []int         `envconfig:"FARACORE_RETRY_STATUSES" default:"429,500,502,503,504"`
	ReconnectDelay    time.Duration `envconfig:"FARACORE_RECONNECT_DELAY" default:"5s"`
	LogLevel          string        `envconfig:"FARACORE_LOG_LEVEL" default:"info"`

	// Lifecycle callbacks. A panicking callback never changes the request
	// outcome.
	OnRequestStart func(method, path string)                                            `ignored:"true"`
	OnRequestEnd   func(method, path string, status int, elapsed time.Duration)         `ignored:"true"`
	OnError        func(err error)                                                      `ignored:"true"`
}

// FromEnv builds a Config from FARACORE_* environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withDefaults fills unset fields of a hand-built Config literal.
// MaxRetries stays as given: an explicit zero means "never retry".
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RetryableStatuses == nil {
		c.RetryableStatuses = []int{429, 500, 502, 503, 504}
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}
