package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// Get retrieves a memory by ID within a collection.
func (u *UseCase) Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	if id == "" {
		return nil, goerr.New("memory id is empty", goerr.T(model.TagValidation))
	}
	if collection == "" {
		return nil, goerr.New("collection is empty", goerr.T(model.TagValidation))
	}

	return u.index.Get(ctx, collection, id)
}

// Delete removes a memory permanently.
func (u *UseCase) Delete(ctx context.Context, collection string, id model.MemoryID) error {
	if id == "" {
		return goerr.New("memory id is empty", goerr.T(model.TagValidation))
	}
	if collection == "" {
		return goerr.New("collection is empty", goerr.T(model.TagValidation))
	}

	if err := u.index.Delete(ctx, collection, id); err != nil {
		return err
	}

	logging.From(ctx).Info("deleted memory", "id", id, "collection", collection)
	return nil
}
