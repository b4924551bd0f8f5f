// Package cache holds uploaded documents between the upload request and the
// streaming session that translates them.
package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long an uploaded document stays retrievable.
const DefaultTTL = time.Hour

// DefaultSweepInterval is how often expired documents are evicted.
const DefaultSweepInterval = 10 * time.Minute

// ErrNotFound reports a document id that was never stored or has been swept.
var ErrNotFound = errors.New("document not found or expired")

// Document is one uploaded, extracted text blob. It is immutable once stored.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	Paragraphs []string  `json:"paragraphs,omitempty"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reports whether the document is older than ttl at now. A document
// aged exactly ttl is not expired.
func (d Document) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(d.CreatedAt) > ttl
}

// Store is the upload cache contract. Implementations must be safe for
// concurrent use.
type Store interface {
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	// Sweep evicts documents older than the store TTL and returns the count removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}
