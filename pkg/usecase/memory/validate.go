package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// Validate stamps LastValidatedAt with the current time, resetting the age
// used by decay. Vote counters are untouched. Lost compare-and-set races
// are retried a few times before surfacing a conflict.
func (u *UseCase) Validate(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	if id == "" {
		return nil, goerr.New("memory id is empty", goerr.T(model.TagValidation))
	}
	if collection == "" {
		return nil, goerr.New("collection is empty", goerr.T(model.TagValidation))
	}

	var lastErr error
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		mem, err := u.index.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}

		now := u.now()
		mem.LastValidatedAt = &now

		if err := u.index.Swap(ctx, mem, mem.Revision); err != nil {
			if model.IsConflict(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		logging.From(ctx).Info("validated memory", "id", id, "collection", collection)
		return mem, nil
	}

	return nil, goerr.Wrap(lastErr, "validate retries exhausted", goerr.V("id", id))
}
