package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/repository"
	"github.com/m-mizutani/lethe/pkg/usecase/memory"
)

// stubEmbedder maps known texts to fixed vectors so retrieval tests are
// deterministic. Unknown texts embed to the x axis.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func newUseCase(t *testing.T, embedder *stubEmbedder, opts ...memory.Option) (*memory.UseCase, *repository.Chromem) {
	t.Helper()
	index := repository.NewChromem()
	if embedder == nil {
		embedder = &stubEmbedder{}
	}
	return memory.New(index, embedder, opts...), index
}

func TestStore(t *testing.T) {
	uc, index := newUseCase(t, nil)
	ctx := context.Background()

	mem, err := uc.Store(ctx, &memory.StoreInput{
		Content:    "split large CSV exports into daily chunks",
		Collection: "learnings",
		Source:     model.SourceAgent,
		Tags:       []string{"export"},
		AppSlug:    "billing",
	})
	gt.NoError(t, err)
	gt.V(t, mem).NotNil()
	gt.Equal(t, mem.Confidence, 1.0)
	gt.Equal(t, mem.Votes, model.VoteStats{})
	gt.A(t, mem.Embedding).Length(3)

	stored, err := index.Get(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Content, mem.Content)
	gt.Equal(t, stored.AppSlug, "billing")
}

func TestStoreValidation(t *testing.T) {
	uc, _ := newUseCase(t, nil)
	ctx := context.Background()

	cases := map[string]*memory.StoreInput{
		"empty content": {
			Collection: "learnings",
			Source:     model.SourceAgent,
		},
		"empty collection": {
			Content: "something useful",
			Source:  model.SourceAgent,
		},
		"bad source": {
			Content:    "something useful",
			Collection: "learnings",
			Source:     "robot",
		},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Store(ctx, input)
			gt.Error(t, err)
			gt.True(t, model.IsValidation(err))
		})
	}

	bad := 1.5
	_, err := uc.Store(ctx, &memory.StoreInput{
		Content:    "something useful",
		Collection: "learnings",
		Source:     model.SourceAgent,
		Confidence: &bad,
	})
	gt.Error(t, err)
	gt.True(t, model.IsValidation(err))
}

func TestGetAndDelete(t *testing.T) {
	uc, _ := newUseCase(t, nil)
	ctx := context.Background()

	mem, err := uc.Store(ctx, &memory.StoreInput{
		Content:    "disable the cache during schema migrations",
		Collection: "learnings",
		Source:     model.SourceHuman,
	})
	gt.NoError(t, err)

	got, err := uc.Get(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.ID, mem.ID)

	gt.NoError(t, uc.Delete(ctx, "learnings", mem.ID))

	_, err = uc.Get(ctx, "learnings", mem.ID)
	gt.True(t, model.IsNotFound(err))

	err = uc.Delete(ctx, "learnings", model.NewMemoryID())
	gt.True(t, model.IsNotFound(err))
}

func TestFindReRanksByDecayedConfidence(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"stale lesson": {1, 0, 0},
		"fresh lesson": {0.95, 0.3122, 0},
		"query":        {1, 0, 0},
	}}

	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	current := base
	uc, _ := newUseCase(t, embedder, memory.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	// Stored 90 days before the query: three half-lives of decay
	stale, err := uc.Store(ctx, &memory.StoreInput{
		Content:    "stale lesson",
		Collection: "learnings",
		Source:     model.SourceAgent,
	})
	gt.NoError(t, err)

	current = base.AddDate(0, 0, 90)
	fresh, err := uc.Store(ctx, &memory.StoreInput{
		Content:    "fresh lesson",
		Collection: "learnings",
		Source:     model.SourceAgent,
	})
	gt.NoError(t, err)

	results, err := uc.Find(ctx, &memory.FindInput{
		Query:      "query",
		Collection: "learnings",
		Limit:      10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)

	// The stale memory is more similar but loses on decayed confidence
	gt.Equal(t, results[0].Memory.ID, fresh.ID)
	gt.Equal(t, results[1].Memory.ID, stale.ID)
	gt.True(t, results[1].Similarity > results[0].Similarity)
	gt.True(t, results[0].Score > results[1].Score)
	gt.True(t, results[1].DecayFactor < results[0].DecayFactor)
}

func TestFindThreshold(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"near": {1, 0, 0},
		"far":  {0, 1, 0},
	}}
	uc, _ := newUseCase(t, embedder)
	ctx := context.Background()

	for _, content := range []string{"near", "far"} {
		_, err := uc.Store(ctx, &memory.StoreInput{
			Content:    content,
			Collection: "learnings",
			Source:     model.SourceAgent,
		})
		gt.NoError(t, err)
	}

	results, err := uc.Find(ctx, &memory.FindInput{
		Query:      "near",
		Collection: "learnings",
		Threshold:  0.3,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.Content, "near")
}

func TestFindValidation(t *testing.T) {
	uc, _ := newUseCase(t, nil)
	ctx := context.Background()

	_, err := uc.Find(ctx, &memory.FindInput{Collection: "learnings"})
	gt.True(t, model.IsValidation(err))

	_, err = uc.Find(ctx, &memory.FindInput{Query: "anything"})
	gt.True(t, model.IsValidation(err))
}

func TestValidateResetsDecayAge(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	current := base
	uc, index := newUseCase(t, nil, memory.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	mem, err := uc.Store(ctx, &memory.StoreInput{
		Content:    "rotate service keys monthly",
		Collection: "learnings",
		Source:     model.SourceHuman,
	})
	gt.NoError(t, err)

	current = base.AddDate(0, 0, 60)
	validated, err := uc.Validate(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.V(t, validated.LastValidatedAt).NotNil()
	gt.True(t, validated.LastValidatedAt.Equal(current))
	gt.True(t, validated.EffectiveSince().Equal(current))

	// The write went through the index, not just the returned copy
	stored, err := index.Get(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.V(t, stored.LastValidatedAt).NotNil()

	_, err = uc.Validate(ctx, "learnings", "")
	gt.True(t, model.IsValidation(err))

	_, err = uc.Validate(ctx, "learnings", model.NewMemoryID())
	gt.True(t, model.IsNotFound(err))
}
