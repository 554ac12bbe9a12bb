package adapter

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
)

// FeedbackEventKind labels the feedback event types streamed for analysis.
type FeedbackEventKind string

const (
	FeedbackEventUpvote   FeedbackEventKind = "upvote"
	FeedbackEventDownvote FeedbackEventKind = "downvote"
	FeedbackEventCitation FeedbackEventKind = "citation"
	FeedbackEventOutcome  FeedbackEventKind = "outcome"
)

// FeedbackEvent is one applied feedback mutation. Events are append-only
// and feed offline analysis of memory quality; they are not read back by
// the core.
type FeedbackEvent struct {
	RunID      string    `bigquery:"run_id"`
	MemoryID   string    `bigquery:"memory_id"`
	Collection string    `bigquery:"collection"`
	Kind       string    `bigquery:"kind"`
	Value      float64   `bigquery:"value"`
	RecordedAt time.Time `bigquery:"recorded_at"`
}

// FeedbackSink receives applied feedback events.
type FeedbackSink interface {
	Record(ctx context.Context, events ...*FeedbackEvent) error
}

// bigquerySink streams feedback events into a BigQuery table.
type bigquerySink struct {
	inserter *bigquery.Inserter
	client   *bigquery.Client
}

// NewBigQuerySink creates a FeedbackSink writing to dataset.table.
func NewBigQuerySink(ctx context.Context, projectID, dataset, table string) (FeedbackSink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.T(model.TagUnavailable))
	}

	return &bigquerySink{
		inserter: client.Dataset(dataset).Table(table).Inserter(),
		client:   client,
	}, nil
}

func (s *bigquerySink) Record(ctx context.Context, events ...*FeedbackEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.inserter.Put(ctx, events); err != nil {
		return goerr.Wrap(err, "failed to insert feedback events",
			goerr.V("count", len(events)), goerr.T(model.TagUnavailable))
	}
	return nil
}
