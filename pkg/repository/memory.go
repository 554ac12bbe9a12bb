package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
)

// MemoryTrustStore is an in-process TrustStore for local mode and tests.
type MemoryTrustStore struct {
	mu   sync.Mutex
	rows map[string]*model.TrustScore
}

// NewMemoryTrustStore creates an empty in-memory trust store.
func NewMemoryTrustStore() *MemoryTrustStore {
	return &MemoryTrustStore{
		rows: make(map[string]*model.TrustScore),
	}
}

func (s *MemoryTrustStore) Get(ctx context.Context, app, category string) (*model.TrustScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[app+":"+category]
	if !ok {
		return nil, goerr.New("trust score not found",
			goerr.V("app", app), goerr.V("category", category), goerr.T(model.TagNotFound))
	}
	return row.Clone(), nil
}

func (s *MemoryTrustStore) Put(ctx context.Context, row *model.TrustScore, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revision int64
	if current, ok := s.rows[row.Key()]; ok {
		revision = current.Revision
	}
	if revision != expected {
		return goerr.New("trust score revision mismatch",
			goerr.V("key", row.Key()),
			goerr.V("expected", expected),
			goerr.V("actual", revision),
			goerr.T(model.TagConflict))
	}

	stored := row.Clone()
	stored.Revision = expected + 1
	s.rows[row.Key()] = stored
	row.Revision = stored.Revision
	return nil
}

func (s *MemoryTrustStore) Close() error {
	return nil
}
