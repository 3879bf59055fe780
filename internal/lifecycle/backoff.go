package lifecycle

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxRetries = 8
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = time.Minute
)

// RetryPolicy bounds transport reconnects.
//
// MaxRetries 0 means DefaultMaxRetries; a negative value retries forever.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Exhausted reports whether retryCount consecutive failures exceed the budget.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	p = p.normalized()
	return p.MaxRetries >= 0 && retryCount > p.MaxRetries
}

// Delay is the wait before reconnect attempt n (n starts at 1):
// BaseDelay * 2^(n-1), capped at MaxDelay, with 0.7..1.3 jitter.
func (p RetryPolicy) Delay(n int) time.Duration {
	p = p.normalized()
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
