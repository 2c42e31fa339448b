package engine

import (
	"math"
	"time"

	"github.com/weftworks/weft/internal/domain"
)

// backoffStrategy computes the delay before retry attempt n (1-indexed:
// attempt 1 is the first retry after the initial failure).
type backoffStrategy interface {
	Delay(attempt int) time.Duration
}

type fixedBackoff struct {
	interval time.Duration
}

func (b fixedBackoff) Delay(_ int) time.Duration {
	return b.interval
}

type linearBackoff struct {
	base time.Duration
}

func (b linearBackoff) Delay(attempt int) time.Duration {
	return b.base * time.Duration(attempt)
}

type exponentialBackoff struct {
	base time.Duration
}

func (b exponentialBackoff) Delay(attempt int) time.Duration {
	return time.Duration(float64(b.base) * math.Pow(2, float64(attempt-1)))
}

// strategyFor maps the workflow's retry settings to a strategy. The base
// delay comes from Settings.RetryBackoff, falling back to the engine
// default; an unset policy behaves as fixed.
func strategyFor(settings domain.Settings, defaultBase time.Duration) backoffStrategy {
	base := settings.RetryBackoff
	if base <= 0 {
		base = defaultBase
	}
	if base <= 0 {
		base = time.Second
	}

	switch settings.RetryPolicy {
	case domain.RetryPolicyLinear:
		return linearBackoff{base: base}
	case domain.RetryPolicyExponential:
		return exponentialBackoff{base: base}
	default:
		return fixedBackoff{interval: base}
	}
}
