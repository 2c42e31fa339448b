package circuit_breaker

import (
	"log/slog"
	"sync"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// Provider hands out one breaker per named dependency. All breakers share
// the same config; state change hooks registered on the provider apply to
// every breaker it creates.
type Provider struct {
	mu       sync.RWMutex
	config   domain.CircuitBreakerConfig
	breakers map[string]ports.CircuitBreaker
	hooks    []func(name string, from, to ports.CircuitBreakerState)
	logger   *slog.Logger
}

func NewProvider(config domain.CircuitBreakerConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		config:   config,
		breakers: make(map[string]ports.CircuitBreaker),
		logger:   logger.With("component", "circuit-breaker-provider"),
	}
}

func (p *Provider) Get(name string) ports.CircuitBreaker {
	p.mu.RLock()
	breaker, exists := p.breakers[name]
	p.mu.RUnlock()

	if exists {
		return breaker
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.breakers[name]; ok {
		return existing
	}

	breaker = newCircuitBreaker(name, p.config, p.logger, p.notify)
	p.breakers[name] = breaker

	p.logger.Info("created circuit breaker",
		"name", name,
		"failure_threshold", p.config.FailureThreshold,
		"open_timeout", p.config.OpenTimeout)

	return breaker
}

func (p *Provider) AllMetrics() map[string]ports.CircuitBreakerMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metrics := make(map[string]ports.CircuitBreakerMetrics, len(p.breakers))
	for name, breaker := range p.breakers {
		metrics[name] = breaker.Metrics()
	}
	return metrics
}

func (p *Provider) OnStateChange(fn func(name string, from, to ports.CircuitBreakerState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

func (p *Provider) notify(name string, from, to ports.CircuitBreakerState) {
	p.mu.RLock()
	hooks := make([]func(string, ports.CircuitBreakerState, ports.CircuitBreakerState), len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.RUnlock()

	for _, hook := range hooks {
		hook(name, from, to)
	}
}

var _ ports.CircuitBreakerProvider = (*Provider)(nil)
