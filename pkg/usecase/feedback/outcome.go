package feedback

import (
	"context"

	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// RecordOutcome folds one success/failure signal into the running success
// rate of every listed memory. Outcomes are counted independently of
// citations: not every citation is later followed by an outcome report.
// The rate is a plain cumulative mean; old outcomes are never decayed out.
func (u *UseCase) RecordOutcome(ctx context.Context, collection string, ids []model.MemoryID, runID string, outcome model.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	if err := u.ensureExist(ctx, collection, ids); err != nil {
		return err
	}

	events := make([]*adapter.FeedbackEvent, 0, len(ids))
	for _, id := range ids {
		err := u.update(ctx, collection, id, func(mem *model.Memory) {
			mem.Votes.RecordOutcome(outcome)
		})
		if err != nil {
			return err
		}

		events = append(events, &adapter.FeedbackEvent{
			RunID:      runID,
			MemoryID:   string(id),
			Collection: collection,
			Kind:       string(adapter.FeedbackEventOutcome),
			Value:      outcome.Value(),
			RecordedAt: u.now(),
		})
	}

	u.emit(ctx, events...)
	logging.From(ctx).Info("recorded outcome",
		"collection", collection, "count", len(ids), "run_id", runID, "outcome", outcome)
	return nil
}
