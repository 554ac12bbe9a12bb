package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	memoryCollection = "memories"
	trustCollection  = "trust_scores"

	distanceField = "vector_distance"
)

// Firestore implements both VectorIndex and TrustStore on a single Firestore
// database. Memories live in a flat "memories" collection with a vector
// field queried via FindNearest; trust rows live in "trust_scores" keyed by
// app:category. Optimistic versioning uses a revision field checked inside
// transactions.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed repository.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.T(model.TagUnavailable))
	}

	return &Firestore{client: client}, nil
}

// Close releases the Firestore client.
func (r *Firestore) Close() error {
	return r.client.Close()
}

type memoryDoc struct {
	ID              string             `firestore:"id"`
	Content         string             `firestore:"content"`
	Embedding       firestore.Vector32 `firestore:"embedding"`
	Collection      string             `firestore:"collection"`
	Source          string             `firestore:"source"`
	Tags            []string           `firestore:"tags"`
	Confidence      float64            `firestore:"confidence"`
	AppSlug         string             `firestore:"app_slug"`
	CreatedAt       time.Time          `firestore:"created_at"`
	LastValidatedAt *time.Time         `firestore:"last_validated_at"`
	Upvotes         int                `firestore:"upvotes"`
	Downvotes       int                `firestore:"downvotes"`
	Citations       int                `firestore:"citations"`
	SuccessRate     float64            `firestore:"success_rate"`
	OutcomeCount    int                `firestore:"outcome_count"`
	Revision        int64              `firestore:"revision"`
}

func toMemoryDoc(m *model.Memory) *memoryDoc {
	return &memoryDoc{
		ID:              string(m.ID),
		Content:         m.Content,
		Embedding:       firestore.Vector32(m.Embedding),
		Collection:      m.Collection,
		Source:          string(m.Source),
		Tags:            m.Tags,
		Confidence:      m.Confidence,
		AppSlug:         m.AppSlug,
		CreatedAt:       m.CreatedAt,
		LastValidatedAt: m.LastValidatedAt,
		Upvotes:         m.Votes.Upvotes,
		Downvotes:       m.Votes.Downvotes,
		Citations:       m.Votes.Citations,
		SuccessRate:     m.Votes.SuccessRate,
		OutcomeCount:    m.Votes.OutcomeCount,
		Revision:        m.Revision,
	}
}

func (d *memoryDoc) toModel() *model.Memory {
	return &model.Memory{
		ID:              model.MemoryID(d.ID),
		Content:         d.Content,
		Embedding:       []float32(d.Embedding),
		Collection:      d.Collection,
		Source:          model.Source(d.Source),
		Tags:            d.Tags,
		Confidence:      d.Confidence,
		AppSlug:         d.AppSlug,
		CreatedAt:       d.CreatedAt,
		LastValidatedAt: d.LastValidatedAt,
		Votes: model.VoteStats{
			Upvotes:      d.Upvotes,
			Downvotes:    d.Downvotes,
			Citations:    d.Citations,
			SuccessRate:  d.SuccessRate,
			OutcomeCount: d.OutcomeCount,
		},
		Revision: d.Revision,
	}
}

// wrapStoreErr maps Firestore gRPC status codes onto the error taxonomy.
func wrapStoreErr(err error, msg string, options ...goerr.Option) error {
	switch status.Code(err) {
	case codes.NotFound:
		options = append(options, goerr.T(model.TagNotFound))
	case codes.Unavailable, codes.DeadlineExceeded:
		options = append(options, goerr.T(model.TagUnavailable))
	case codes.Aborted, codes.FailedPrecondition:
		options = append(options, goerr.T(model.TagConflict))
	}
	return goerr.Wrap(err, msg, options...)
}

func (r *Firestore) memoryRef(id model.MemoryID) *firestore.DocumentRef {
	return r.client.Collection(memoryCollection).Doc(string(id))
}

// Upsert writes a memory, bumping the stored revision.
func (r *Firestore) Upsert(ctx context.Context, mem *model.Memory) error {
	ref := r.memoryRef(mem.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var revision int64
		snap, err := tx.Get(ref)
		if err == nil {
			var current memoryDoc
			if err := snap.DataTo(&current); err != nil {
				return goerr.Wrap(err, "failed to decode memory", goerr.V("id", mem.ID))
			}
			revision = current.Revision
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		doc := toMemoryDoc(mem)
		doc.Revision = revision + 1
		return tx.Set(ref, doc)
	})
	if err != nil {
		return wrapStoreErr(err, "failed to upsert memory", goerr.V("id", mem.ID))
	}

	mem.Revision++
	return nil
}

// Get retrieves a memory by ID, checking it belongs to the collection.
func (r *Firestore) Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	snap, err := r.memoryRef(id).Get(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to get memory", goerr.V("id", id))
	}

	var doc memoryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("id", id))
	}
	if collection != "" && doc.Collection != collection {
		return nil, goerr.New("memory not found in collection",
			goerr.V("id", id), goerr.V("collection", collection), goerr.T(model.TagNotFound))
	}

	return doc.toModel(), nil
}

// Swap replaces a memory only if the stored revision equals expected.
func (r *Firestore) Swap(ctx context.Context, mem *model.Memory, expected int64) error {
	ref := r.memoryRef(mem.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var current memoryDoc
		if err := snap.DataTo(&current); err != nil {
			return goerr.Wrap(err, "failed to decode memory", goerr.V("id", mem.ID))
		}
		if current.Revision != expected {
			return goerr.New("memory revision mismatch",
				goerr.V("id", mem.ID),
				goerr.V("expected", expected),
				goerr.V("actual", current.Revision),
				goerr.T(model.TagConflict))
		}

		doc := toMemoryDoc(mem)
		doc.Revision = expected + 1
		return tx.Set(ref, doc)
	})
	if err != nil {
		if model.IsConflict(err) {
			return err
		}
		return wrapStoreErr(err, "failed to swap memory", goerr.V("id", mem.ID))
	}

	mem.Revision = expected + 1
	return nil
}

// Delete removes a memory permanently.
func (r *Firestore) Delete(ctx context.Context, collection string, id model.MemoryID) error {
	// Existence check so deletes of unknown IDs surface not-found rather
	// than succeeding silently.
	if _, err := r.Get(ctx, collection, id); err != nil {
		return err
	}

	if _, err := r.memoryRef(id).Delete(ctx); err != nil {
		return wrapStoreErr(err, "failed to delete memory", goerr.V("id", id))
	}
	return nil
}

// Query performs vector search within a collection via FindNearest.
func (r *Firestore) Query(ctx context.Context, input *QueryInput) ([]*SearchHit, error) {
	q := r.client.Collection(memoryCollection).Query.
		Where("collection", "==", input.Collection)
	if input.AppSlug != "" {
		q = q.Where("app_slug", "==", input.AppSlug)
	}

	vq := q.FindNearest("embedding",
		firestore.Vector32(input.Vector),
		input.Limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField},
	)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var hits []*SearchHit
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapStoreErr(err, "failed to iterate vector query")
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("path", snap.Ref.Path))
		}

		similarity := 1.0
		if d, ok := snap.Data()[distanceField].(float64); ok {
			// Cosine distance in [0,2]; similarity normalized to [0,1].
			similarity = 1 - d
			if similarity < 0 {
				similarity = 0
			}
		}

		hits = append(hits, &SearchHit{Memory: doc.toModel(), Similarity: similarity})
	}

	return hits, nil
}

// List returns all memories of a collection, or of every collection when
// collection is empty.
func (r *Firestore) List(ctx context.Context, collection string) ([]*model.Memory, error) {
	q := r.client.Collection(memoryCollection).Query
	if collection != "" {
		q = q.Where("collection", "==", collection)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var memories []*model.Memory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapStoreErr(err, "failed to list memories")
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("path", snap.Ref.Path))
		}
		memories = append(memories, doc.toModel())
	}

	return memories, nil
}

type trustDoc struct {
	App           string    `firestore:"app"`
	Category      string    `firestore:"category"`
	Score         float64   `firestore:"trust_score"`
	SampleCount   int       `firestore:"sample_count"`
	HalfLifeDays  float64   `firestore:"decay_half_life_days"`
	LastUpdatedAt time.Time `firestore:"last_updated_at"`
	Revision      int64     `firestore:"revision"`
}

func (r *Firestore) trustRef(app, category string) *firestore.DocumentRef {
	return r.client.Collection(trustCollection).Doc(app + ":" + category)
}

// Get retrieves a trust row by (app, category).
func (r *Firestore) GetTrust(ctx context.Context, app, category string) (*model.TrustScore, error) {
	snap, err := r.trustRef(app, category).Get(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to get trust score",
			goerr.V("app", app), goerr.V("category", category))
	}

	var doc trustDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode trust score")
	}

	return &model.TrustScore{
		App:           doc.App,
		Category:      doc.Category,
		Score:         doc.Score,
		SampleCount:   doc.SampleCount,
		HalfLifeDays:  doc.HalfLifeDays,
		LastUpdatedAt: doc.LastUpdatedAt,
		Revision:      doc.Revision,
	}, nil
}

// PutTrust writes a trust row only if the stored revision equals expected;
// expected 0 requires the row to not exist yet.
func (r *Firestore) PutTrust(ctx context.Context, row *model.TrustScore, expected int64) error {
	ref := r.trustRef(row.App, row.Category)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var revision int64
		snap, err := tx.Get(ref)
		if err == nil {
			var current trustDoc
			if err := snap.DataTo(&current); err != nil {
				return goerr.Wrap(err, "failed to decode trust score")
			}
			revision = current.Revision
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if revision != expected {
			return goerr.New("trust score revision mismatch",
				goerr.V("key", row.Key()),
				goerr.V("expected", expected),
				goerr.V("actual", revision),
				goerr.T(model.TagConflict))
		}

		return tx.Set(ref, &trustDoc{
			App:           row.App,
			Category:      row.Category,
			Score:         row.Score,
			SampleCount:   row.SampleCount,
			HalfLifeDays:  row.HalfLifeDays,
			LastUpdatedAt: row.LastUpdatedAt,
			Revision:      expected + 1,
		})
	})
	if err != nil {
		if model.IsConflict(err) {
			return err
		}
		return wrapStoreErr(err, "failed to put trust score", goerr.V("key", row.Key()))
	}

	row.Revision = expected + 1
	return nil
}

// FirestoreTrustStore adapts a Firestore repository to the TrustStore
// interface so both stores can share one client.
type FirestoreTrustStore struct {
	repo *Firestore
}

// TrustStore returns the TrustStore view of this repository.
func (r *Firestore) TrustStore() *FirestoreTrustStore {
	return &FirestoreTrustStore{repo: r}
}

func (s *FirestoreTrustStore) Get(ctx context.Context, app, category string) (*model.TrustScore, error) {
	return s.repo.GetTrust(ctx, app, category)
}

func (s *FirestoreTrustStore) Put(ctx context.Context, row *model.TrustScore, expected int64) error {
	return s.repo.PutTrust(ctx, row, expected)
}

func (s *FirestoreTrustStore) Close() error {
	// The underlying client is shared with the VectorIndex view and is
	// closed there.
	return nil
}
