// Package memory implements CRUD and semantic retrieval over memories,
// delegating persistence to the vector index and re-ranking candidates by
// decayed confidence.
package memory

import (
	"time"

	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/decay"
	"github.com/m-mizutani/lethe/pkg/repository"
)

const casRetryLimit = 3

// UseCase provides memory operations
type UseCase struct {
	index    repository.VectorIndex
	embedder adapter.Embedder
	decay    decay.Params
	now      func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithDecayParams overrides the decay parameters.
func WithDecayParams(p decay.Params) Option {
	return func(uc *UseCase) {
		uc.decay = p
	}
}

// WithClock overrides the time source. Only used by tests.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new memory UseCase instance
func New(index repository.VectorIndex, embedder adapter.Embedder, opts ...Option) *UseCase {
	uc := &UseCase{
		index:    index,
		embedder: embedder,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
