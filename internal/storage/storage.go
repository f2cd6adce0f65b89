// Package storage provides the object store abstraction used to mirror
// published output tables. Implementations cover S3 and the local filesystem
// for development and tests.
package storage

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrPutFailed      = errors.New("put failed")
	ErrGetFailed      = errors.New("get failed")
)

// ObjectStore abstracts the destination the sink mirrors published tables to.
type ObjectStore interface {
	// Put uploads the file at localPath to the given object key.
	Put(ctx context.Context, localPath, key string) error

	// Get downloads the object at key to localPath.
	Get(ctx context.Context, key, localPath string) error

	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
