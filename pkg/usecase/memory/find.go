package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/decay"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/repository"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

const defaultFindLimit = 10

// FindInput describes a semantic retrieval query.
type FindInput struct {
	Query      string
	Collection string
	Limit      int
	Threshold  float64 // results scoring below this are dropped
	AppSlug    string  // optional filter
}

// FindResult is one ranked retrieval result. Score is the raw similarity
// multiplied by the decayed confidence; AgeDays and DecayFactor are exposed
// so callers can see why a memory ranked where it did.
type FindResult struct {
	Memory      *model.Memory
	Score       float64
	Similarity  float64
	AgeDays     float64
	DecayFactor float64
}

// Find embeds the query, fetches semantic candidates from the index, and
// re-ranks them by similarity * decayed confidence.
// Candidates are over-fetched: a stale memory with high similarity may rank
// below a fresher one outside the raw top-N.
func (u *UseCase) Find(ctx context.Context, input *FindInput) ([]*FindResult, error) {
	if input.Query == "" {
		return nil, goerr.New("query is empty", goerr.T(model.TagValidation))
	}
	if input.Collection == "" {
		return nil, goerr.New("collection is empty", goerr.T(model.TagValidation))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}

	vector, err := u.embedder.Embed(ctx, input.Query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	hits, err := u.index.Query(ctx, &repository.QueryInput{
		Collection: input.Collection,
		Vector:     vector,
		Limit:      limit * 3,
		AppSlug:    input.AppSlug,
	})
	if err != nil {
		return nil, err
	}

	now := u.now()
	results := make([]*FindResult, 0, len(hits))
	for _, hit := range hits {
		factor := u.decay.Confidence(hit.Memory, now)
		score := hit.Similarity * factor
		if score < input.Threshold {
			continue
		}

		results = append(results, &FindResult{
			Memory:      hit.Memory,
			Score:       score,
			Similarity:  hit.Similarity,
			AgeDays:     decay.AgeDays(hit.Memory, now),
			DecayFactor: factor,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	logging.From(ctx).Debug("found memories",
		"collection", input.Collection,
		"candidates", len(hits),
		"returned", len(results),
	)

	return results, nil
}
