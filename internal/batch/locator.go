package batch

import (
	"context"
	"fmt"

	"go-soundcloud-download/internal/models"
)

// StreamResolver turns a stream reference into the location of the binary resource.
type StreamResolver interface {
	ResolveStream(ctx context.Context, streamURL string) (models.StreamLocation, error)
}

// Fetcher retrieves the binary payload at a resolved location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*models.BinaryPayload, error)
}

// StreamLocator resolves an item's stream reference and downloads what it points at.
type StreamLocator struct {
	resolver StreamResolver
	fetcher  Fetcher
}

func NewStreamLocator(resolver StreamResolver, fetcher Fetcher) *StreamLocator {
	return &StreamLocator{resolver: resolver, fetcher: fetcher}
}

// Locate returns the item's payload. Nothing is returned unless both the
// resolution and the download succeed.
func (l *StreamLocator) Locate(ctx context.Context, item models.CatalogItem) (*models.BinaryPayload, error) {
	loc, err := l.resolver.ResolveStream(ctx, item.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("resolving stream for %q: %w", item.Title, err)
	}
	payload, err := l.fetcher.Fetch(ctx, loc.Location)
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", item.Title, err)
	}
	return payload, nil
}
