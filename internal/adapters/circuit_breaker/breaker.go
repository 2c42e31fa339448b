package circuit_breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

type circuitBreaker struct {
	name          string
	config        domain.CircuitBreakerConfig
	logger        *slog.Logger
	onStateChange func(name string, from, to ports.CircuitBreakerState)

	mu                 sync.Mutex
	state              ports.CircuitBreakerState
	totalRequests      int64
	successCount       int64
	failureCount       int64
	requestsRejected   int64
	consecutiveFailure int64
	consecutiveSuccess int64
	lastStateChange    time.Time
	nextProbe          time.Time
	halfOpenProbes     int
}

func NewCircuitBreaker(name string, config domain.CircuitBreakerConfig, logger *slog.Logger) ports.CircuitBreaker {
	return newCircuitBreaker(name, config, logger, nil)
}

func newCircuitBreaker(name string, config domain.CircuitBreakerConfig, logger *slog.Logger, onStateChange func(string, ports.CircuitBreakerState, ports.CircuitBreakerState)) *circuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 60 * time.Second
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = 1
	}

	return &circuitBreaker{
		name:            name,
		config:          config,
		logger:          logger.With("component", "circuit-breaker", "name", name),
		onStateChange:   onStateChange,
		state:           ports.StateClosed,
		lastStateChange: time.Now(),
	}
}

func (cb *circuitBreaker) Execute(ctx context.Context, fn func() error) error {
	_, err := cb.Call(ctx, func(context.Context) (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (cb *circuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cb.mu.Lock()
	cb.totalRequests++
	if err := cb.admit(); err != nil {
		cb.requestsRejected++
		state := cb.state
		cb.mu.Unlock()
		cb.logger.Debug("request rejected", "state", state.String())
		return nil, err
	}
	wasHalfOpen := cb.state == ports.StateHalfOpen
	cb.mu.Unlock()

	result, err := cb.invoke(ctx, fn)
	cb.afterCall(wasHalfOpen, err)
	return result, err
}

// invoke runs fn, bounding it with the configured per-call timeout when
// one is set.
func (cb *circuitBreaker) invoke(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if cb.config.CallTimeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.config.CallTimeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := fn(callCtx)
		done <- outcome{result: r, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-callCtx.Done():
		return nil, callCtx.Err()
	}
}

// admit decides whether a call may proceed. Caller holds the mutex.
func (cb *circuitBreaker) admit() error {
	if cb.state == ports.StateOpen && time.Now().After(cb.nextProbe) {
		cb.setState(ports.StateHalfOpen)
	}

	switch cb.state {
	case ports.StateClosed:
		return nil
	case ports.StateOpen:
		return domain.ErrBreakerOpen
	case ports.StateHalfOpen:
		if cb.halfOpenProbes < cb.config.MaxProbes {
			cb.halfOpenProbes++
			return nil
		}
		return domain.ErrTooManyRequests
	default:
		return domain.ErrBreakerOpen
	}
}

func (cb *circuitBreaker) afterCall(wasHalfOpen bool, callErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if wasHalfOpen && cb.halfOpenProbes > 0 {
		cb.halfOpenProbes--
	}

	if callErr != nil {
		cb.failureCount++
		cb.consecutiveFailure++
		cb.consecutiveSuccess = 0

		switch cb.state {
		case ports.StateClosed:
			if cb.consecutiveFailure >= int64(cb.config.FailureThreshold) {
				cb.setState(ports.StateOpen)
			}
		case ports.StateHalfOpen:
			cb.setState(ports.StateOpen)
		}
		return
	}

	cb.successCount++
	cb.consecutiveSuccess++
	cb.consecutiveFailure = 0

	if cb.state == ports.StateHalfOpen && cb.consecutiveSuccess >= int64(cb.config.SuccessThreshold) {
		cb.setState(ports.StateClosed)
	}
}

// setState performs a transition. Caller holds the mutex.
func (cb *circuitBreaker) setState(newState ports.CircuitBreakerState) {
	oldState := cb.state
	if oldState == newState {
		return
	}

	cb.logger.Info("circuit breaker state change",
		"from", oldState.String(),
		"to", newState.String(),
		"consecutive_failures", cb.consecutiveFailure)

	cb.state = newState
	cb.lastStateChange = time.Now()

	switch newState {
	case ports.StateOpen:
		cb.nextProbe = time.Now().Add(cb.config.OpenTimeout)
		cb.consecutiveSuccess = 0
		cb.halfOpenProbes = 0
	case ports.StateHalfOpen:
		cb.halfOpenProbes = 0
		cb.consecutiveFailure = 0
	case ports.StateClosed:
		cb.nextProbe = time.Time{}
		cb.consecutiveFailure = 0
	}

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

func (cb *circuitBreaker) State() ports.CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == ports.StateOpen && time.Now().After(cb.nextProbe) {
		return ports.StateHalfOpen
	}
	return cb.state
}

func (cb *circuitBreaker) Metrics() ports.CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return ports.CircuitBreakerMetrics{
		State:              cb.state,
		TotalRequests:      cb.totalRequests,
		SuccessCount:       cb.successCount,
		FailureCount:       cb.failureCount,
		RequestsRejected:   cb.requestsRejected,
		ConsecutiveFailure: cb.consecutiveFailure,
		LastStateChange:    cb.lastStateChange,
	}
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.logger.Info("circuit breaker reset")

	cb.totalRequests = 0
	cb.successCount = 0
	cb.failureCount = 0
	cb.requestsRejected = 0
	cb.consecutiveFailure = 0
	cb.consecutiveSuccess = 0
	cb.halfOpenProbes = 0
	cb.setState(ports.StateClosed)
}
