package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Archiver implements domain.MarketArchiver by serializing a market record
// to JSON and uploading it under markets/{id}.json. The S3 copy becomes the
// authoritative long-term record once the market is closed; the database row
// is kept for queries and is never deleted implicitly.
type Archiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

var _ domain.MarketArchiver = (*Archiver)(nil)

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveMarket uploads the full market record and returns the object path.
func (a *Archiver) ArchiveMarket(ctx context.Context, m domain.Market) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal market %s: %w", m.ID, err)
	}

	path := "markets/" + m.ID + ".json"
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", err
	}

	a.logger.InfoContext(ctx, "market archived",
		slog.String("market_id", m.ID),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return path, nil
}

// ArchiveBatch uploads every market in the slice and returns the paths of
// the archives written. It stops at the first failure so a partial run can
// be retried without re-uploading what already succeeded.
func (a *Archiver) ArchiveBatch(ctx context.Context, markets []domain.Market) ([]string, error) {
	paths := make([]string, 0, len(markets))
	for _, m := range markets {
		path, err := a.ArchiveMarket(ctx, m)
		if err != nil {
			return paths, fmt.Errorf("s3blob: archive batch at market %s: %w", m.ID, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
