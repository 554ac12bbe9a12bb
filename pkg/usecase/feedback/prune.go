package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/decay"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// PruneOptions selects which memories to delete. The two criteria are
// independent OR conditions:
//   - decayed confidence below MinConfidence AND age at least MinAgeDays
//   - downvotes above MaxDownvotes, regardless of age
//
// A nil field disables its criterion.
type PruneOptions struct {
	Collection    string
	MinConfidence *float64
	MinAgeDays    *float64
	MaxDownvotes  *int
}

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	DeletedCount int              `json:"deleted_count"`
	DeletedIDs   []model.MemoryID `json:"deleted_ids"`
	Skipped      int              `json:"skipped,omitempty"`
}

// Prune deletes memories matching the options. Deletions fan out to the
// index with a small fixed worker pool; malformed records are skipped and
// counted. When an archive is configured, doomed memories are written there
// as JSONL before any deletion happens.
func (u *UseCase) Prune(ctx context.Context, opts *PruneOptions) (*PruneResult, error) {
	if opts == nil || (opts.MinConfidence == nil && opts.MaxDownvotes == nil) {
		return nil, goerr.New("prune needs at least one criterion", goerr.T(model.TagValidation))
	}

	memories, err := u.index.List(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}

	now := u.now()
	result := &PruneResult{}
	var doomed []*model.Memory
	for _, mem := range memories {
		if err := mem.Validate(); err != nil {
			logging.From(ctx).Warn("skipping malformed memory", "id", mem.ID, "error", err)
			result.Skipped++
			continue
		}
		if u.shouldPrune(mem, opts, now) {
			doomed = append(doomed, mem)
		}
	}

	if len(doomed) == 0 {
		return result, nil
	}

	if err := u.archiveMemories(ctx, doomed); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(pruneWorkers)
	for _, mem := range doomed {
		eg.Go(func() error {
			if err := u.index.Delete(ctx, mem.Collection, mem.ID); err != nil {
				if model.IsNotFound(err) {
					return nil // already gone: someone else deleted it first
				}
				return err
			}
			mu.Lock()
			result.DeletedCount++
			result.DeletedIDs = append(result.DeletedIDs, mem.ID)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "prune aborted")
	}

	logging.From(ctx).Info("pruned memories",
		"collection", opts.Collection,
		"deleted", result.DeletedCount,
		"skipped", result.Skipped,
	)

	return result, nil
}

func (u *UseCase) shouldPrune(mem *model.Memory, opts *PruneOptions, now time.Time) bool {
	if opts.MinConfidence != nil {
		minAge := 0.0
		if opts.MinAgeDays != nil {
			minAge = *opts.MinAgeDays
		}
		confidence := u.decay.Confidence(mem, now)
		if confidence < *opts.MinConfidence && decay.AgeDays(mem, now) >= minAge {
			return true
		}
	}

	if opts.MaxDownvotes != nil && mem.Votes.Downvotes > *opts.MaxDownvotes {
		return true
	}

	return false
}

// archiveMemories writes the doomed set to the audit archive as one JSONL
// object per prune pass.
func (u *UseCase) archiveMemories(ctx context.Context, doomed []*model.Memory) error {
	if u.archive == nil {
		return nil
	}

	key := fmt.Sprintf("pruned/%s.jsonl", u.now().UTC().Format("2006-01-02T15-04-05.000000000Z"))
	w, err := u.archive.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open archive object", goerr.V("key", key))
	}

	enc := json.NewEncoder(w)
	for _, mem := range doomed {
		if err := enc.Encode(mem); err != nil {
			_ = w.Close()
			return goerr.Wrap(err, "failed to archive memory", goerr.V("id", mem.ID))
		}
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize archive object", goerr.V("key", key))
	}

	logging.From(ctx).Info("archived pruned memories", "key", key, "count", len(doomed))
	return nil
}
