package ports

import (
	"context"
	"time"
)

type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type CircuitBreakerMetrics struct {
	State              CircuitBreakerState `json:"state"`
	TotalRequests      int64               `json:"total_requests"`
	SuccessCount       int64               `json:"success_count"`
	FailureCount       int64               `json:"failure_count"`
	RequestsRejected   int64               `json:"requests_rejected"`
	ConsecutiveFailure int64               `json:"consecutive_failure"`
	LastStateChange    time.Time           `json:"last_state_change"`
}

// CircuitBreaker guards one external dependency. Execute runs fn under
// the breaker's admission rules; when the breaker is open the call fails
// fast with domain.ErrBreakerOpen and fn is never invoked.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
	Call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error)
	State() CircuitBreakerState
	Metrics() CircuitBreakerMetrics
	Reset()
}

// CircuitBreakerProvider hands out one breaker per named dependency,
// creating it lazily from the shared config.
type CircuitBreakerProvider interface {
	Get(name string) CircuitBreaker
	AllMetrics() map[string]CircuitBreakerMetrics
	OnStateChange(fn func(name string, from, to CircuitBreakerState))
}
