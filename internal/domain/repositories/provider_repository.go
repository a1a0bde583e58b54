package repositories

import (
	"context"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

// ProviderRepository is the read-only roster of field-service providers
type ProviderRepository interface {
	// List returns the whole roster in its stored order
	List(ctx context.Context) ([]*entities.ProviderRecord, error)

	// GetByID returns one provider or a NOT_FOUND AppError
	GetByID(ctx context.Context, id string) (*entities.ProviderRecord, error)
}

// ProviderSearchRepository is an optional full-text index over the roster, used by
// the local fallback when geocoding finds nothing.
type ProviderSearchRepository interface {
	// Index upserts providers into the index
	Index(ctx context.Context, providers []*entities.ProviderRecord) error

	// Search returns the IDs of providers whose text fields contain text
	Search(ctx context.Context, text string, limit int) ([]string, error)
}
