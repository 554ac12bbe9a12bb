package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

// Chromem implements VectorIndex on chromem-go, a pure Go embedded vector
// database. It backs local mode and unit tests. chromem cannot enumerate
// documents, so the adapter keeps its own id registry per collection; the
// registry mutex also serializes Swap, which chromem has no primitive for.
type Chromem struct {
	db *chromem.DB

	mu  sync.Mutex
	ids map[string]map[model.MemoryID]struct{}
}

// NewChromem creates an in-process vector index.
func NewChromem() *Chromem {
	return &Chromem{
		db:  chromem.NewDB(),
		ids: make(map[string]map[model.MemoryID]struct{}),
	}
}

// Close is a no-op: chromem keeps everything in memory.
func (r *Chromem) Close() error {
	return nil
}

func (r *Chromem) collection(name string) (*chromem.Collection, error) {
	col, err := r.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem collection", goerr.V("collection", name))
	}
	return col, nil
}

func toDocument(m *model.Memory, revision int64) (chromem.Document, error) {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return chromem.Document{}, goerr.Wrap(err, "failed to marshal tags")
	}
	votes, err := json.Marshal(m.Votes)
	if err != nil {
		return chromem.Document{}, goerr.Wrap(err, "failed to marshal votes")
	}

	meta := map[string]string{
		"collection": m.Collection,
		"source":     string(m.Source),
		"tags":       string(tags),
		"confidence": strconv.FormatFloat(m.Confidence, 'f', -1, 64),
		"app_slug":   m.AppSlug,
		"created_at": m.CreatedAt.Format(time.RFC3339Nano),
		"votes":      string(votes),
		"revision":   strconv.FormatInt(revision, 10),
	}
	if m.LastValidatedAt != nil {
		meta["last_validated_at"] = m.LastValidatedAt.Format(time.RFC3339Nano)
	}

	return chromem.Document{
		ID:        string(m.ID),
		Content:   m.Content,
		Embedding: m.Embedding,
		Metadata:  meta,
	}, nil
}

func fromDocument(doc chromem.Document) (*model.Memory, error) {
	m := &model.Memory{
		ID:         model.MemoryID(doc.ID),
		Content:    doc.Content,
		Embedding:  doc.Embedding,
		Collection: doc.Metadata["collection"],
		Source:     model.Source(doc.Metadata["source"]),
		AppSlug:    doc.Metadata["app_slug"],
	}

	if raw := doc.Metadata["tags"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.Tags); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal tags", goerr.V("id", doc.ID))
		}
	}
	if raw := doc.Metadata["votes"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.Votes); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal votes", goerr.V("id", doc.ID))
		}
	}

	confidence, err := strconv.ParseFloat(doc.Metadata["confidence"], 64)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse confidence", goerr.V("id", doc.ID))
	}
	m.Confidence = confidence

	createdAt, err := time.Parse(time.RFC3339Nano, doc.Metadata["created_at"])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse created_at", goerr.V("id", doc.ID))
	}
	m.CreatedAt = createdAt

	if raw := doc.Metadata["last_validated_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse last_validated_at", goerr.V("id", doc.ID))
		}
		m.LastValidatedAt = &t
	}

	revision, err := strconv.ParseInt(doc.Metadata["revision"], 10, 64)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse revision", goerr.V("id", doc.ID))
	}
	m.Revision = revision

	return m, nil
}

// write replaces a document under the registry lock. chromem's AddDocument
// does not overwrite, so an existing document is deleted first.
func (r *Chromem) write(ctx context.Context, mem *model.Memory, revision int64) error {
	col, err := r.collection(mem.Collection)
	if err != nil {
		return err
	}

	doc, err := toDocument(mem, revision)
	if err != nil {
		return err
	}

	if _, ok := r.ids[mem.Collection][mem.ID]; ok {
		if err := col.Delete(ctx, nil, nil, string(mem.ID)); err != nil {
			return goerr.Wrap(err, "failed to replace document", goerr.V("id", mem.ID))
		}
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", mem.ID))
	}

	if r.ids[mem.Collection] == nil {
		r.ids[mem.Collection] = make(map[model.MemoryID]struct{})
	}
	r.ids[mem.Collection][mem.ID] = struct{}{}
	mem.Revision = revision
	return nil
}

func (r *Chromem) get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	if _, ok := r.ids[collection][id]; !ok {
		return nil, goerr.New("memory not found",
			goerr.V("id", id), goerr.V("collection", collection), goerr.T(model.TagNotFound))
	}

	col, err := r.collection(collection)
	if err != nil {
		return nil, err
	}

	doc, err := col.GetByID(ctx, string(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get document",
			goerr.V("id", id), goerr.T(model.TagNotFound))
	}

	return fromDocument(doc)
}

// Upsert writes a memory unconditionally, bumping its revision.
func (r *Chromem) Upsert(ctx context.Context, mem *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	revision := int64(1)
	if current, err := r.get(ctx, mem.Collection, mem.ID); err == nil {
		revision = current.Revision + 1
	}

	return r.write(ctx, mem, revision)
}

// Get retrieves a memory by ID within a collection.
func (r *Chromem) Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.get(ctx, collection, id)
}

// Swap replaces a memory only if its stored revision equals expected.
func (r *Chromem) Swap(ctx context.Context, mem *model.Memory, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.get(ctx, mem.Collection, mem.ID)
	if err != nil {
		return err
	}
	if current.Revision != expected {
		return goerr.New("memory revision mismatch",
			goerr.V("id", mem.ID),
			goerr.V("expected", expected),
			goerr.V("actual", current.Revision),
			goerr.T(model.TagConflict))
	}

	return r.write(ctx, mem, expected+1)
}

// Delete removes a memory permanently.
func (r *Chromem) Delete(ctx context.Context, collection string, id model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[collection][id]; !ok {
		return goerr.New("memory not found",
			goerr.V("id", id), goerr.V("collection", collection), goerr.T(model.TagNotFound))
	}

	col, err := r.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("id", id))
	}

	delete(r.ids[collection], id)
	return nil
}

// Query returns the nearest candidates by cosine similarity.
func (r *Chromem) Query(ctx context.Context, input *QueryInput) ([]*SearchHit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	col, err := r.collection(input.Collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	limit := input.Limit
	if count := col.Count(); limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	var where map[string]string
	if input.AppSlug != "" {
		where = map[string]string{"app_slug": input.AppSlug}
	}

	results, err := col.QueryEmbedding(ctx, input.Vector, limit, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", input.Collection))
	}

	hits := make([]*SearchHit, 0, len(results))
	for _, res := range results {
		doc, err := col.GetByID(ctx, res.ID)
		if err != nil {
			continue // deleted between query and fetch
		}
		mem, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		hits = append(hits, &SearchHit{Memory: mem, Similarity: float64(res.Similarity)})
	}

	return hits, nil
}

// List returns all memories of a collection; empty means all collections.
func (r *Chromem) List(ctx context.Context, collection string) ([]*model.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collections := []string{collection}
	if collection == "" {
		collections = collections[:0]
		for name := range r.ids {
			collections = append(collections, name)
		}
	}

	var memories []*model.Memory
	for _, name := range collections {
		for id := range r.ids[name] {
			mem, err := r.get(ctx, name, id)
			if err != nil {
				return nil, err
			}
			memories = append(memories, mem)
		}
	}

	return memories, nil
}
