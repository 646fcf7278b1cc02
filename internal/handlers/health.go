package handlers

import (
	"net/http"
	"time"
)

// HealthHandlers answers liveness and readiness probes.
type HealthHandlers struct {
	providerName string
	startedAt    time.Time
	clock        func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthProviderName records which rate provider the process selected at startup.
func WithHealthProviderName(name string) HealthOption {
	return func(h *HealthHandlers) {
		h.providerName = name
	}
}

// WithHealthClock overrides the clock, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.clock().UTC()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

// Readyz reports readiness. Both components are in-process, so readiness only
// confirms wiring completed and names the selected rate provider.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"rateProvider": h.providerName,
	})
}
