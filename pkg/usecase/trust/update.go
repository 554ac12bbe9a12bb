package trust

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// Update folds one outcome into the (app, category) trust score with an
// exponential-moving-average step. The learning rate is 1/(samples+2): the
// neutral prior counts as one pseudo-sample, so the first outcome moves the
// score halfway toward its value and later outcomes stabilize it, which is
// exactly a running mean seeded with 0.5. Rows are created lazily on first
// outcome and concurrent updates of the same pair are resolved by
// compare-and-set retry.
func (u *UseCase) Update(ctx context.Context, app, category string, outcome model.Outcome) (*model.TrustScore, error) {
	if err := outcome.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		row, err := u.store.Get(ctx, app, category)
		if err != nil {
			if !model.IsNotFound(err) {
				return nil, err
			}
			row = model.NewTrustScore(app, category)
			if u.halfLifeDays > 0 {
				row.HalfLifeDays = u.halfLifeDays
			}
		}
		if err := row.Validate(); err != nil {
			return nil, err
		}

		alpha := 1.0 / float64(row.SampleCount+2)
		row.Score += alpha * (outcome.Value() - row.Score)
		row.SampleCount++
		row.LastUpdatedAt = u.now()

		if err := u.store.Put(ctx, row, row.Revision); err != nil {
			if model.IsConflict(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		logging.From(ctx).Info("updated trust score",
			"app", app,
			"category", category,
			"score", row.Score,
			"samples", row.SampleCount,
		)
		return row, nil
	}

	return nil, goerr.Wrap(lastErr, "trust update retries exhausted",
		goerr.V("app", app), goerr.V("category", category))
}
