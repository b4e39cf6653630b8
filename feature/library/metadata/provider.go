package metadata

import (
	"context"
	"errors"

	"library-sync/feature/library/models"

	"go.uber.org/zap"
)

// ErrNotFound is returned by providers that do not know the title.
var ErrNotFound = errors.New("title not found")

// Provider looks up the media snapshot of a title.
type Provider interface {
	Lookup(ctx context.Context, kind models.MediaKind, externalID int64) (*models.Media, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, kind models.MediaKind, externalID int64) (*models.Media, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, kind models.MediaKind, externalID int64) (*models.Media, error) {
	return f(ctx, kind, externalID)
}

// Fallback is the snapshot used for titles no provider could resolve.
func Fallback(kind models.MediaKind, externalID int64) models.Media {
	return models.NormalizeMedia(models.Media{ExternalID: externalID, Kind: kind})
}

// Resolve returns the provider's snapshot of the title, or the fallback when
// the provider is nil, does not know the title or fails. Lookup failures are
// logged and never block tracking.
func Resolve(ctx context.Context, p Provider, kind models.MediaKind, externalID int64, logger *zap.Logger) models.Media {
	if p == nil {
		return Fallback(kind, externalID)
	}
	media, err := p.Lookup(ctx, kind, externalID)
	if err != nil || media == nil {
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn("Metadata lookup failed, using fallback",
				zap.String("media", models.MediaKey(kind, externalID)), zap.Error(err))
		}
		return Fallback(kind, externalID)
	}
	m := *media
	m.Kind = kind
	m.ExternalID = externalID
	return models.NormalizeMedia(m)
}
