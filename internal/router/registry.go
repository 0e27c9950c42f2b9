package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	skillerrors "github.com/skillmind/skillmind/internal/errors"
)

// Registry holds the static expert catalog and tracks runtime health.
// Expert status is serialized by the registry's own lock; the Decision
// Cache (cache.go) has a separate lock of its own.
type Registry struct {
	mu      sync.RWMutex
	experts map[string]*Expert
	status  map[string]*Status
}

// NewRegistry builds a registry from a static expert catalog. Every
// expert starts in the warming_up state.
func NewRegistry(experts []*Expert) *Registry {
	r := &Registry{
		experts: make(map[string]*Expert, len(experts)),
		status:  make(map[string]*Status, len(experts)),
	}
	for _, e := range experts {
		r.experts[e.ID] = e
		r.status[e.ID] = &Status{State: StateWarmingUp, SuccessRate: 1.0, LastHealthCheck: time.Now()}
	}
	return r
}

// Get returns an expert by id.
func (r *Registry) Get(id string) (*Expert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experts[id]
	return e, ok
}

// Status returns a copy of the current status for an expert.
func (r *Registry) Status(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// All returns every expert in the registry paired with its current
// status, for observability surfaces (CLI `status`, MCP `index_status`).
func (r *Registry) All() []ExpertStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ExpertStatus, 0, len(r.experts))
	for id, e := range r.experts {
		out = append(out, ExpertStatus{Expert: e, Status: *r.status[id]})
	}
	return out
}

// EligibleFor returns experts whose supported_tools contain tool, whose
// status is not unhealthy, and whose load is below 0.95 (§4.5).
func (r *Registry) EligibleFor(tool string) []*Expert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Expert
	for id, e := range r.experts {
		if !e.SupportsTool(tool) {
			continue
		}
		st := r.status[id]
		if st.State == StateUnhealthy || st.Load >= 0.95 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// RecordSuccess updates an expert's EMA success rate after a successful
// executor call: success_rate = 0.99*old + 0.01.
func (r *Registry) RecordSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.status[id]; ok {
		st.SuccessRate = 0.99*st.SuccessRate + 0.01
	}
}

// RecordFailure updates an expert's EMA success rate after a failed
// executor call: success_rate = 0.99*old + 0.
func (r *Registry) RecordFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.status[id]; ok {
		st.SuccessRate = 0.99 * st.SuccessRate
	}
}

// SetLoad updates an expert's load and active request count. Used by
// callers that track concurrency external to the registry.
func (r *Registry) SetLoad(id string, load float64, activeRequests int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.status[id]; ok {
		st.Load = load
		st.ActiveRequests = activeRequests
	}
}

// SetState force-sets an expert's health state (used by tests and by the
// health checker below).
func (r *Registry) SetState(id string, state ExpertState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.status[id]; ok {
		st.State = state
	}
}

// checkHealth applies §4.5's thresholds: load > 0.95 -> unhealthy,
// > 0.9 -> degraded, else healthy.
func (r *Registry) checkHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, st := range r.status {
		switch {
		case st.Load > 0.95:
			st.State = StateUnhealthy
		case st.Load > 0.9:
			st.State = StateDegraded
		default:
			st.State = StateHealthy
		}
		st.LastHealthCheck = now
	}
}

// UnknownExpertError builds the invariant-violation error for an unknown
// expert id lookup (§7).
func UnknownExpertError(id string) error {
	return skillerrors.RouterError(skillerrors.ErrCodeUnknownExpert, "unknown expert id: "+id, nil)
}

// HealthChecker runs Registry.checkHealth on a fixed interval until
// stopped. Grounded on the teacher's background-goroutine lifecycle
// idiom (stop-channel/done-channel shape).
type HealthChecker struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewHealthChecker creates a health checker for registry, not yet started.
func NewHealthChecker(registry *Registry, interval time.Duration, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		registry: registry,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the periodic health sweep in a background goroutine until
// Stop is called or ctx is canceled.
func (h *HealthChecker) Start(ctx context.Context) {
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
				h.registry.checkHealth()
				h.logger.Debug("expert_health_sweep_completed")
			}
		}
	}()
}

// Stop signals the health checker to exit and waits for it to do so.
func (h *HealthChecker) Stop() {
	close(h.stop)
	<-h.done
}
