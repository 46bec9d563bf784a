// Package blob defines the object-storage port: upload a binary object
// and get back a durable, resolvable locator.
package blob

import (
	"context"
	"io"
)

// Uploader stores an object under key and returns its download URL.
// Upload failure is reported distinctly; no partial objects are
// observable on error.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}
