package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to external blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// MarketArchiver writes a durable archive copy of a market record before it
// is closed. It returns the archive object path.
type MarketArchiver interface {
	ArchiveMarket(ctx context.Context, m Market) (string, error)
}
