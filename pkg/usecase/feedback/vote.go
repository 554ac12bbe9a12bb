package feedback

import (
	"context"

	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// Vote increments the upvote or downvote counter of one memory.
func (u *UseCase) Vote(ctx context.Context, collection string, id model.MemoryID, kind model.VoteKind) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	err := u.update(ctx, collection, id, func(mem *model.Memory) {
		if kind == model.VoteUp {
			mem.Votes.Upvotes++
		} else {
			mem.Votes.Downvotes++
		}
	})
	if err != nil {
		return err
	}

	eventKind := adapter.FeedbackEventUpvote
	if kind == model.VoteDown {
		eventKind = adapter.FeedbackEventDownvote
	}
	u.emit(ctx, &adapter.FeedbackEvent{
		MemoryID:   string(id),
		Collection: collection,
		Kind:       string(eventKind),
		Value:      1,
		RecordedAt: u.now(),
	})

	logging.From(ctx).Info("recorded vote", "id", id, "collection", collection, "kind", kind)
	return nil
}
