// Package feedback records votes, citations, and outcomes against memories,
// maintains the derived vote statistics, and implements the pruning policy.
package feedback

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/decay"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/repository"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

const (
	casRetryLimit = 3
	pruneWorkers  = 4
)

// UseCase provides feedback operations over memories
type UseCase struct {
	index   repository.VectorIndex
	sink    adapter.FeedbackSink // optional
	archive adapter.Archive      // optional
	decay   decay.Params
	now     func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithSink streams applied feedback events to an analytics sink.
func WithSink(sink adapter.FeedbackSink) Option {
	return func(uc *UseCase) {
		uc.sink = sink
	}
}

// WithArchive writes pruned memories to an audit archive before deletion.
func WithArchive(archive adapter.Archive) Option {
	return func(uc *UseCase) {
		uc.archive = archive
	}
}

// WithDecayParams overrides the decay parameters.
func WithDecayParams(p decay.Params) Option {
	return func(uc *UseCase) {
		uc.decay = p
	}
}

// WithClock overrides the time source. Only used by tests.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new feedback UseCase instance
func New(index repository.VectorIndex, opts ...Option) *UseCase {
	uc := &UseCase{
		index: index,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// update applies fn to one memory with compare-and-set retry. fn runs on a
// fresh read each attempt so conflicting writers never lose increments.
func (u *UseCase) update(ctx context.Context, collection string, id model.MemoryID, fn func(*model.Memory)) error {
	var lastErr error
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		mem, err := u.index.Get(ctx, collection, id)
		if err != nil {
			return err
		}

		fn(mem)

		if err := u.index.Swap(ctx, mem, mem.Revision); err != nil {
			if model.IsConflict(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}

	return goerr.Wrap(lastErr, "feedback retries exhausted", goerr.V("id", id))
}

// ensureExist validates every id before any write, so batch operations fail
// fast without partial increments. Missing ids are reported together.
func (u *UseCase) ensureExist(ctx context.Context, collection string, ids []model.MemoryID) error {
	if len(ids) == 0 {
		return goerr.New("memory ids are empty", goerr.T(model.TagValidation))
	}

	var missing []model.MemoryID
	for _, id := range ids {
		if _, err := u.index.Get(ctx, collection, id); err != nil {
			if model.IsNotFound(err) {
				missing = append(missing, id)
				continue
			}
			return err
		}
	}

	if len(missing) > 0 {
		return goerr.New("memories not found",
			goerr.V("missing_ids", missing),
			goerr.V("collection", collection),
			goerr.T(model.TagNotFound))
	}
	return nil
}

// emit streams events to the sink when one is configured. Sink failures are
// logged and swallowed: the feedback write already succeeded and analytics
// must not fail the caller.
func (u *UseCase) emit(ctx context.Context, events ...*adapter.FeedbackEvent) {
	if u.sink == nil || len(events) == 0 {
		return
	}
	if err := u.sink.Record(ctx, events...); err != nil {
		logging.From(ctx).Warn("failed to record feedback events",
			"error", err, "count", len(events))
	}
}
