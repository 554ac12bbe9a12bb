package repository

import (
	"context"

	"github.com/m-mizutani/lethe/pkg/model"
)

// SearchHit is one vector search candidate with its raw similarity in [0,1].
type SearchHit struct {
	Memory     *model.Memory
	Similarity float64
}

// QueryInput describes a semantic candidate query against one collection.
type QueryInput struct {
	Collection string
	Vector     []float32
	Limit      int
	AppSlug    string // optional filter
}

// VectorIndex is the interface to the external vector-similarity index that
// owns memory payloads and embeddings. Swap implements the optimistic
// compare-and-set discipline: it fails with a conflict-tagged error when the
// stored revision no longer matches expected.
type VectorIndex interface {
	// Upsert writes a memory unconditionally and bumps its revision.
	Upsert(ctx context.Context, mem *model.Memory) error

	// Get retrieves a memory by ID within a collection.
	Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error)

	// Swap replaces a memory only if its stored revision equals expected.
	Swap(ctx context.Context, mem *model.Memory, expected int64) error

	// Delete removes a memory permanently.
	Delete(ctx context.Context, collection string, id model.MemoryID) error

	// Query returns up to Limit nearest candidates ordered by similarity.
	Query(ctx context.Context, input *QueryInput) ([]*SearchHit, error)

	// List returns all memories of a collection; an empty collection
	// means all collections.
	List(ctx context.Context, collection string) ([]*model.Memory, error)

	// Close releases the underlying client.
	Close() error
}

// TrustStore is the durable counter store holding one trust row per
// (app, category) pair with optimistic versioning.
type TrustStore interface {
	// Get retrieves a row, failing with a not-found-tagged error when the
	// pair has never been observed.
	Get(ctx context.Context, app, category string) (*model.TrustScore, error)

	// Put writes a row only if its stored revision equals expected;
	// expected 0 means the row must not exist yet.
	Put(ctx context.Context, row *model.TrustScore, expected int64) error

	// Close releases the underlying client.
	Close() error
}
