package feedback

import (
	"context"

	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// Cite increments the citation counter of every listed memory. All ids are
// validated before any write; an unknown id rejects the whole batch with
// the missing ids attached.
func (u *UseCase) Cite(ctx context.Context, collection string, ids []model.MemoryID, runID string) error {
	if err := u.ensureExist(ctx, collection, ids); err != nil {
		return err
	}

	events := make([]*adapter.FeedbackEvent, 0, len(ids))
	for _, id := range ids {
		err := u.update(ctx, collection, id, func(mem *model.Memory) {
			mem.Votes.Citations++
		})
		if err != nil {
			return err
		}

		events = append(events, &adapter.FeedbackEvent{
			RunID:      runID,
			MemoryID:   string(id),
			Collection: collection,
			Kind:       string(adapter.FeedbackEventCitation),
			Value:      1,
			RecordedAt: u.now(),
		})
	}

	u.emit(ctx, events...)
	logging.From(ctx).Info("recorded citations",
		"collection", collection, "count", len(ids), "run_id", runID)
	return nil
}
