// Package health aggregates component checks into a service health verdict
package health

import (
	"sort"
	"sync"

	"basket_swap/internal/core"
)

type check struct {
	fn       func() error
	critical bool
}

// HealthManager aggregates health status from different components. Only critical checks
// decide IsHealthy; optional ones are reported but never fail the service.
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]check
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger core.ILogger) *HealthManager {
	hm := &HealthManager{checks: make(map[string]check)}
	if logger != nil {
		hm.logger = logger.WithField("component", "health_manager")
	}
	return hm
}

// Register adds a critical health check for a component
func (hm *HealthManager) Register(component string, fn func() error) {
	hm.register(component, fn, true)
}

// RegisterOptional adds a check that is reported but does not affect IsHealthy
func (hm *HealthManager) RegisterOptional(component string, fn func() error) {
	hm.register(component, fn, false)
}

func (hm *HealthManager) register(component string, fn func() error, critical bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check{fn: fn, critical: critical}
}

// Components lists registered component names, sorted
func (hm *HealthManager) Components() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetStatus returns the current status of all registered components
func (hm *HealthManager) GetStatus() map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]string, len(hm.checks))
	for component, c := range hm.checks {
		if err := c.fn(); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// Check runs a single component's check. Unknown components report false.
func (hm *HealthManager) Check(component string) (bool, error) {
	hm.mu.RLock()
	c, ok := hm.checks[component]
	hm.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, c.fn()
}

// IsHealthy returns true if all critical components are healthy
func (hm *HealthManager) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	for name, c := range hm.checks {
		if !c.critical {
			continue
		}
		if err := c.fn(); err != nil {
			if hm.logger != nil {
				hm.logger.Debug("Component unhealthy", "name", name, "error", err)
			}
			return false
		}
	}
	return true
}
