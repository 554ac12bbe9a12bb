package feedback_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/repository"
	"github.com/m-mizutani/lethe/pkg/usecase/feedback"
)

func seedMemory(t *testing.T, index repository.VectorIndex, collection string, createdAt time.Time) *model.Memory {
	t.Helper()
	mem := &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    "seeded lesson",
		Embedding:  []float32{1, 0, 0},
		Collection: collection,
		Source:     model.SourceAgent,
		Confidence: 1,
		CreatedAt:  createdAt,
	}
	gt.NoError(t, index.Upsert(context.Background(), mem))
	return mem
}

func TestVote(t *testing.T) {
	index := repository.NewChromem()
	uc := feedback.New(index)
	ctx := context.Background()

	mem := seedMemory(t, index, "learnings", time.Now())

	for i := 0; i < 3; i++ {
		gt.NoError(t, uc.Vote(ctx, "learnings", mem.ID, model.VoteUp))
	}
	gt.NoError(t, uc.Vote(ctx, "learnings", mem.ID, model.VoteDown))

	stored, err := index.Get(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Votes.Upvotes, 3)
	gt.Equal(t, stored.Votes.Downvotes, 1)

	err = uc.Vote(ctx, "learnings", mem.ID, "sideways")
	gt.True(t, model.IsValidation(err))

	err = uc.Vote(ctx, "learnings", model.NewMemoryID(), model.VoteUp)
	gt.True(t, model.IsNotFound(err))
}

func TestCite(t *testing.T) {
	index := repository.NewChromem()
	uc := feedback.New(index)
	ctx := context.Background()

	a := seedMemory(t, index, "learnings", time.Now())
	b := seedMemory(t, index, "learnings", time.Now())

	gt.NoError(t, uc.Cite(ctx, "learnings", []model.MemoryID{a.ID, b.ID}, "run-1"))
	gt.NoError(t, uc.Cite(ctx, "learnings", []model.MemoryID{a.ID}, "run-2"))

	stored, err := index.Get(ctx, "learnings", a.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Votes.Citations, 2)
}

func TestCiteRejectsWholeBatch(t *testing.T) {
	index := repository.NewChromem()
	uc := feedback.New(index)
	ctx := context.Background()

	known := seedMemory(t, index, "learnings", time.Now())
	unknown := model.NewMemoryID()

	err := uc.Cite(ctx, "learnings", []model.MemoryID{known.ID, unknown}, "run-1")
	gt.Error(t, err)
	gt.True(t, model.IsNotFound(err))

	// The known memory must not have been incremented
	stored, err := index.Get(ctx, "learnings", known.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Votes.Citations, 0)

	err = uc.Cite(ctx, "learnings", nil, "run-1")
	gt.True(t, model.IsValidation(err))
}

func TestRecordOutcome(t *testing.T) {
	index := repository.NewChromem()
	uc := feedback.New(index)
	ctx := context.Background()

	mem := seedMemory(t, index, "learnings", time.Now())
	ids := []model.MemoryID{mem.ID}

	gt.NoError(t, uc.RecordOutcome(ctx, "learnings", ids, "run-1", model.OutcomeSuccess))
	gt.NoError(t, uc.RecordOutcome(ctx, "learnings", ids, "run-2", model.OutcomeFailure))

	stored, err := index.Get(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Votes.SuccessRate, 0.5)
	gt.Equal(t, stored.Votes.OutcomeCount, 2)

	err = uc.RecordOutcome(ctx, "learnings", ids, "run-3", "maybe")
	gt.True(t, model.IsValidation(err))
}

// flakyIndex injects compare-and-set conflicts into the first writes.
type flakyIndex struct {
	repository.VectorIndex
	mu       sync.Mutex
	failures int
}

func (f *flakyIndex) Swap(ctx context.Context, mem *model.Memory, expected int64) error {
	f.mu.Lock()
	inject := f.failures > 0
	if inject {
		f.failures--
	}
	f.mu.Unlock()

	if inject {
		return goerr.New("injected conflict", goerr.T(model.TagConflict))
	}
	return f.VectorIndex.Swap(ctx, mem, expected)
}

func TestVoteRetriesConflicts(t *testing.T) {
	index := repository.NewChromem()
	flaky := &flakyIndex{VectorIndex: index, failures: 2}
	uc := feedback.New(flaky)
	ctx := context.Background()

	mem := seedMemory(t, index, "learnings", time.Now())

	gt.NoError(t, uc.Vote(ctx, "learnings", mem.ID, model.VoteUp))

	stored, err := index.Get(ctx, "learnings", mem.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Votes.Upvotes, 1)
}

func TestVoteGivesUpAfterRetries(t *testing.T) {
	index := repository.NewChromem()
	flaky := &flakyIndex{VectorIndex: index, failures: 10}
	uc := feedback.New(flaky)
	ctx := context.Background()

	mem := seedMemory(t, index, "learnings", time.Now())

	err := uc.Vote(ctx, "learnings", mem.ID, model.VoteUp)
	gt.Error(t, err)
	gt.True(t, model.IsConflict(err))
}

// captureSink records emitted feedback events in memory.
type captureSink struct {
	mu     sync.Mutex
	events []*adapter.FeedbackEvent
}

func (s *captureSink) Record(ctx context.Context, events ...*adapter.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func TestFeedbackEventsReachSink(t *testing.T) {
	index := repository.NewChromem()
	sink := &captureSink{}
	uc := feedback.New(index, feedback.WithSink(sink))
	ctx := context.Background()

	mem := seedMemory(t, index, "learnings", time.Now())

	gt.NoError(t, uc.Vote(ctx, "learnings", mem.ID, model.VoteUp))
	gt.NoError(t, uc.Cite(ctx, "learnings", []model.MemoryID{mem.ID}, "run-1"))
	gt.NoError(t, uc.RecordOutcome(ctx, "learnings", []model.MemoryID{mem.ID}, "run-1", model.OutcomeSuccess))

	gt.A(t, sink.events).Length(3)
	gt.Equal(t, sink.events[0].Kind, string(adapter.FeedbackEventUpvote))
	gt.Equal(t, sink.events[1].Kind, string(adapter.FeedbackEventCitation))
	gt.Equal(t, sink.events[1].RunID, "run-1")
	gt.Equal(t, sink.events[2].Kind, string(adapter.FeedbackEventOutcome))
	gt.Equal(t, sink.events[2].Value, 1.0)
}

func TestStats(t *testing.T) {
	index := repository.NewChromem()
	uc := feedback.New(index)
	ctx := context.Background()

	a := seedMemory(t, index, "learnings", time.Now())
	seedMemory(t, index, "learnings", time.Now())
	seedMemory(t, index, "incidents", time.Now())

	gt.NoError(t, uc.Vote(ctx, "learnings", a.ID, model.VoteUp))
	gt.NoError(t, uc.Cite(ctx, "learnings", []model.MemoryID{a.ID}, "run-1"))

	stats, err := uc.Stats(ctx, "")
	gt.NoError(t, err)
	gt.Equal(t, len(stats), 2)

	learnings := stats["learnings"]
	gt.V(t, learnings).NotNil()
	gt.Equal(t, learnings.Count, 2)
	gt.Equal(t, learnings.TotalUpvotes, 1)
	gt.Equal(t, learnings.TotalCitations, 1)
	gt.True(t, learnings.AvgConfidence > 0)
	gt.True(t, learnings.AvgConfidence <= 1)

	only, err := uc.Stats(ctx, "incidents")
	gt.NoError(t, err)
	gt.Equal(t, len(only), 1)
	gt.Equal(t, only["incidents"].Count, 1)
}

// captureArchive stores archived objects in memory per key.
type captureArchive struct {
	mu      sync.Mutex
	objects map[string]*bytes.Buffer
}

type archiveWriter struct {
	*bytes.Buffer
}

func (w *archiveWriter) Close() error { return nil }

func (a *captureArchive) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = make(map[string]*bytes.Buffer)
	}
	buf := &bytes.Buffer{}
	a.objects[key] = buf
	return &archiveWriter{Buffer: buf}, nil
}

func TestPruneOldLowConfidence(t *testing.T) {
	index := repository.NewChromem()
	now := time.Now()
	uc := feedback.New(index, feedback.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	old := seedMemory(t, index, "learnings", now.AddDate(0, 0, -120))
	fresh := seedMemory(t, index, "learnings", now)

	minConfidence := 0.3
	minAge := 30.0
	result, err := uc.Prune(ctx, &feedback.PruneOptions{
		Collection:    "learnings",
		MinConfidence: &minConfidence,
		MinAgeDays:    &minAge,
	})
	gt.NoError(t, err)
	gt.Equal(t, result.DeletedCount, 1)
	gt.A(t, result.DeletedIDs).Length(1)
	gt.Equal(t, result.DeletedIDs[0], old.ID)

	_, err = index.Get(ctx, "learnings", old.ID)
	gt.True(t, model.IsNotFound(err))
	_, err = index.Get(ctx, "learnings", fresh.ID)
	gt.NoError(t, err)
}

func TestPruneAgeFloorProtectsYoungMemories(t *testing.T) {
	index := repository.NewChromem()
	now := time.Now()
	uc := feedback.New(index, feedback.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	// Two days old: confidence sits under the cutoff, age does not
	young := seedMemory(t, index, "learnings", now.AddDate(0, 0, -2))

	minConfidence := 0.6
	minAge := 30.0
	result, err := uc.Prune(ctx, &feedback.PruneOptions{
		Collection:    "learnings",
		MinConfidence: &minConfidence,
		MinAgeDays:    &minAge,
	})
	gt.NoError(t, err)
	gt.Equal(t, result.DeletedCount, 0)

	_, err = index.Get(ctx, "learnings", young.ID)
	gt.NoError(t, err)
}

func TestPruneByDownvotes(t *testing.T) {
	index := repository.NewChromem()
	uc := feedback.New(index)
	ctx := context.Background()

	noisy := seedMemory(t, index, "learnings", time.Now())
	for i := 0; i < 6; i++ {
		gt.NoError(t, uc.Vote(ctx, "learnings", noisy.ID, model.VoteDown))
	}
	kept := seedMemory(t, index, "learnings", time.Now())

	maxDownvotes := 5
	result, err := uc.Prune(ctx, &feedback.PruneOptions{
		Collection:   "learnings",
		MaxDownvotes: &maxDownvotes,
	})
	gt.NoError(t, err)
	gt.Equal(t, result.DeletedCount, 1)
	gt.Equal(t, result.DeletedIDs[0], noisy.ID)

	_, err = index.Get(ctx, "learnings", kept.ID)
	gt.NoError(t, err)
}

func TestPruneRequiresCriteria(t *testing.T) {
	uc := feedback.New(repository.NewChromem())
	ctx := context.Background()

	_, err := uc.Prune(ctx, &feedback.PruneOptions{Collection: "learnings"})
	gt.True(t, model.IsValidation(err))

	_, err = uc.Prune(ctx, nil)
	gt.True(t, model.IsValidation(err))
}

func TestPruneArchivesBeforeDeleting(t *testing.T) {
	index := repository.NewChromem()
	archive := &captureArchive{}
	now := time.Now()
	uc := feedback.New(index,
		feedback.WithArchive(archive),
		feedback.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	seedMemory(t, index, "learnings", now.AddDate(0, 0, -120))
	seedMemory(t, index, "learnings", now.AddDate(0, 0, -120))

	minConfidence := 0.3
	result, err := uc.Prune(ctx, &feedback.PruneOptions{
		Collection:    "learnings",
		MinConfidence: &minConfidence,
	})
	gt.NoError(t, err)
	gt.Equal(t, result.DeletedCount, 2)

	gt.Equal(t, len(archive.objects), 1)
	for key, buf := range archive.objects {
		gt.True(t, strings.HasPrefix(key, "pruned/"))
		gt.True(t, strings.HasSuffix(key, ".jsonl"))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		gt.A(t, lines).Length(2)
	}
}
