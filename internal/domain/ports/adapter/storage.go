package adapter

import (
	"context"
	"time"
)

// DefaultPresignExpiry is the lifetime of a signed download URL unless configured.
const DefaultPresignExpiry = time.Hour

type StoredObject struct {
	Key string
	URL string
}

// ObjectStorage is the port for the object store holding uploads and job outputs.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (StoredObject, error)
	// List returns every key under prefix, following pagination.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// ObjectURL is the permanent (unsigned) URL recorded on File rows.
	ObjectURL(key string) string
}
