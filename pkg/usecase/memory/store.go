package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// StoreInput describes a new memory to persist.
type StoreInput struct {
	Content    string
	Collection string
	Source     model.Source
	Tags       []string
	Confidence *float64 // author-asserted prior; nil means 1
	AppSlug    string
}

// Store validates the input, embeds the content, and writes a new memory
// with zero votes to the index.
func (u *UseCase) Store(ctx context.Context, input *StoreInput) (*model.Memory, error) {
	confidence := 1.0
	if input.Confidence != nil {
		confidence = *input.Confidence
	}

	mem := &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    input.Content,
		Collection: input.Collection,
		Source:     input.Source,
		Tags:       input.Tags,
		Confidence: confidence,
		AppSlug:    input.AppSlug,
		CreatedAt:  u.now(),
	}
	if err := mem.Validate(); err != nil {
		return nil, err
	}

	embedding, err := u.embedder.Embed(ctx, mem.Content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory content")
	}
	mem.Embedding = embedding

	if err := u.index.Upsert(ctx, mem); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("stored memory",
		"id", mem.ID,
		"collection", mem.Collection,
		"source", mem.Source,
	)

	return mem, nil
}
