package worker

import (
	"time"

	"zapis/internal/config"
	"zapis/internal/models"
)

// RetryPolicy is the backoff of failed ledger writes. The pause before attempt n+1 is
// InitialDelay * Multiplier^(n-1), capped at MaxDelay. Attempt MaxAttempts is the last.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RetryPolicyFromConfig maps google.retry onto a policy; zero fields take the defaults.
func RetryPolicyFromConfig(cfg config.LedgerRetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
	}.withDefaults()
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = models.LedgerMaxAttempts
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = models.LedgerRetryInitialDelay * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = models.LedgerRetryMaxDelay * time.Second
	}
	if r.MaxDelay < r.InitialDelay {
		r.MaxDelay = r.InitialDelay
	}
	if r.Multiplier < 1 {
		r.Multiplier = models.LedgerRetryMultiplier
	}
	return r
}

// Exhausted reports whether the task must fail after its attempt-th failure (1-based).
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.withDefaults().MaxAttempts
}

// NextDelay is the pause after the attempt-th failure (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	delay := r.InitialDelay
	for n := 1; n < attempt; n++ {
		delay = time.Duration(float64(delay) * r.Multiplier)
		if delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	return min(delay, r.MaxDelay)
}
