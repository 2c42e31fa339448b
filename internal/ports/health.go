package ports

import (
	"time"

	"github.com/weftworks/weft/internal/domain"
)

// SystemHealth aggregates the health of every subsystem for hosts that
// expose a health endpoint.
type SystemHealth struct {
	Healthy  bool                             `json:"healthy"`
	Storage  HealthStatus                     `json:"storage"`
	Breakers map[string]CircuitBreakerMetrics `json:"breakers"`
	Cache    domain.CacheMetrics              `json:"cache"`
	Uptime   time.Duration                    `json:"uptime"`
}
