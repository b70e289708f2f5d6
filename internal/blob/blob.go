// Package blob stores document contents outside the relational store.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store keeps opaque objects by key.
type Store interface {
	// Put writes the object, replacing any previous content under key.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	// Get opens the object. A missing key yields an error matching
	// errors.ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DocumentKey returns the storage key of a tenant document. Keys are
// partitioned by tenant so a tenant's objects can be listed or purged
// together.
func DocumentKey(tenantID, documentID string) string {
	return path.Join("tenants", tenantID, "documents", documentID)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty blob key")
	}
	if strings.HasPrefix(key, "/") || path.Clean(key) != key {
		return fmt.Errorf("invalid blob key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}
