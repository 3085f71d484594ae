package config

import "time"

// ProviderTimeouts centralizes timeout and retry configuration for provider
// calls. The shortest timeout in the chain wins: the HTTP client timeout must
// be at least as long as the per-call context deadline or calls fail early.
type ProviderTimeouts struct {
	// HTTPClientTimeout bounds one HTTP round trip including connection,
	// TLS handshake, and full response body read.
	HTTPClientTimeout time.Duration `yaml:"http_client_timeout"`

	// PerCallTimeout bounds a single request including all retries.
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`

	// RetryBackoffBase is the base for exponential backoff between retries.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`

	// RetryBackoffMax caps the backoff duration.
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`

	// MaxRetries is the retry budget for rate-limited and transient failures.
	MaxRetries int `yaml:"max_retries"`

	// MaxConcurrentCalls caps simultaneous in-flight provider requests.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// DefaultProviderTimeouts returns the canonical budgets.
func DefaultProviderTimeouts() ProviderTimeouts {
	return ProviderTimeouts{
		HTTPClientTimeout:  2 * time.Minute,
		PerCallTimeout:     5 * time.Minute,
		RetryBackoffBase:   time.Second,
		RetryBackoffMax:    30 * time.Second,
		MaxRetries:         3,
		MaxConcurrentCalls: 8,
	}
}

// fillDefaults replaces zero values with the canonical budgets so a partial
// YAML block does not silently disable retries or timeouts.
func (t *ProviderTimeouts) fillDefaults() {
	def := DefaultProviderTimeouts()
	if t.HTTPClientTimeout == 0 {
		t.HTTPClientTimeout = def.HTTPClientTimeout
	}
	if t.PerCallTimeout == 0 {
		t.PerCallTimeout = def.PerCallTimeout
	}
	if t.RetryBackoffBase == 0 {
		t.RetryBackoffBase = def.RetryBackoffBase
	}
	if t.RetryBackoffMax == 0 {
		t.RetryBackoffMax = def.RetryBackoffMax
	}
	if t.MaxConcurrentCalls == 0 {
		t.MaxConcurrentCalls = def.MaxConcurrentCalls
	}
}

// Backoff returns the delay before retry attempt n (0-based), doubling from
// the base and capped at the max.
func (t ProviderTimeouts) Backoff(attempt int) time.Duration {
	d := t.RetryBackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= t.RetryBackoffMax {
			return t.RetryBackoffMax
		}
	}
	if d > t.RetryBackoffMax {
		return t.RetryBackoffMax
	}
	return d
}
