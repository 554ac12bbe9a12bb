package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/model"
)

// Archive is the interface for the prune audit trail: memories are written
// here as JSONL before they are deleted from the index.
type Archive interface {
	// Put returns a writer for a new archive object
	Put(ctx context.Context, key string) (io.WriteCloser, error)
}

// storageArchive implements Archive using Cloud Storage
type storageArchive struct {
	bucketName string
	client     *storage.Client
}

// NewStorageArchive creates a new Cloud Storage archive
func NewStorageArchive(ctx context.Context, bucketName string) (Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.T(model.TagUnavailable))
	}

	return &storageArchive{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageArchive) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	return obj.NewWriter(ctx), nil
}
