// Package trust maintains one decayed trust score per (app, category) pair
// and decides whether an agent action may proceed without human approval.
package trust

import (
	"time"

	"github.com/m-mizutani/lethe/pkg/repository"
)

const casRetryLimit = 3

// GateConfig holds the thresholds handed to the approval policy.
type GateConfig struct {
	Threshold  float64 // minimum decayed score for auto-approval
	MinSamples int     // minimum recorded outcomes for auto-approval
}

// DefaultGateConfig requires a clearly positive record before any action
// skips human review.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:  0.8,
		MinSamples: 5,
	}
}

// UseCase provides trust scoring operations
type UseCase struct {
	store        repository.TrustStore
	gate         *Gate
	cfg          GateConfig
	halfLifeDays float64
	now          func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithGate overrides the approval policy engine.
func WithGate(gate *Gate) Option {
	return func(uc *UseCase) {
		uc.gate = gate
	}
}

// WithGateConfig overrides the gating thresholds.
func WithGateConfig(cfg GateConfig) Option {
	return func(uc *UseCase) {
		uc.cfg = cfg
	}
}

// WithHalfLife overrides the decay half-life for newly created rows.
func WithHalfLife(days float64) Option {
	return func(uc *UseCase) {
		uc.halfLifeDays = days
	}
}

// WithClock overrides the time source. Only used by tests.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new trust UseCase instance
func New(store repository.TrustStore, opts ...Option) *UseCase {
	uc := &UseCase{
		store: store,
		cfg:   DefaultGateConfig(),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
