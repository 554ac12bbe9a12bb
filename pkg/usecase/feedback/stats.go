package feedback

import (
	"context"

	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// CollectionStats aggregates one collection's memories. AvgConfidence is
// computed through the decay engine at query time, not read from storage.
type CollectionStats struct {
	Count          int     `json:"count"`
	AvgConfidence  float64 `json:"avg_confidence"`
	TotalUpvotes   int     `json:"total_upvotes"`
	TotalDownvotes int     `json:"total_downvotes"`
	TotalCitations int     `json:"total_citations"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
	Skipped        int     `json:"skipped,omitempty"`
}

// Stats aggregates memories per collection. An empty collection argument
// covers all collections. Malformed records are skipped and counted rather
// than failing the whole aggregation.
func (u *UseCase) Stats(ctx context.Context, collection string) (map[string]*CollectionStats, error) {
	memories, err := u.index.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	now := u.now()
	stats := make(map[string]*CollectionStats)
	for _, mem := range memories {
		name := mem.Collection
		if name == "" {
			name = collection
		}
		s, ok := stats[name]
		if !ok {
			s = &CollectionStats{}
			stats[name] = s
		}

		if err := mem.Validate(); err != nil {
			logging.From(ctx).Warn("skipping malformed memory", "id", mem.ID, "error", err)
			s.Skipped++
			continue
		}

		s.Count++
		s.AvgConfidence += u.decay.Confidence(mem, now)
		s.TotalUpvotes += mem.Votes.Upvotes
		s.TotalDownvotes += mem.Votes.Downvotes
		s.TotalCitations += mem.Votes.Citations
		s.AvgSuccessRate += mem.Votes.SuccessRate
	}

	for _, s := range stats {
		if s.Count > 0 {
			s.AvgConfidence /= float64(s.Count)
			s.AvgSuccessRate /= float64(s.Count)
		}
	}

	return stats, nil
}
