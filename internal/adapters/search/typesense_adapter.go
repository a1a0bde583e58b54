package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
	tsclient "github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/typesense"
)

// searchFields are matched with infix search, in priority order
var searchFields = []string{"name", "neighborhood", "city", "state", "regions", "roles"}

// TypesenseAdapter indexes the provider roster in Typesense for the local text fallback
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements ProviderSearchRepository
var _ repositories.ProviderSearchRepository = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// Index upserts providers into the collection
func (a *TypesenseAdapter) Index(ctx context.Context, providers []*entities.ProviderRecord) error {
	collection := a.client.Client().Collection(tsclient.ProvidersCollection)
	for _, p := range providers {
		if _, err := collection.Documents().Upsert(ctx, buildProviderDocument(p)); err != nil {
			return fmt.Errorf("failed to index provider %s: %w", p.ID, err)
		}
	}
	log.Debug().Int("count", len(providers)).Msg("indexed providers")
	return nil
}

// Search returns ids of providers whose text fields contain text
func (a *TypesenseAdapter) Search(ctx context.Context, text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	params := &api.SearchCollectionParams{
		Q:        pointer.String(text),
		QueryBy:  pointer.String(strings.Join(searchFields, ",")),
		Infix:    pointer.String(infixModes()),
		NumTypos: pointer.String("0"),
		PerPage:  pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(tsclient.ProvidersCollection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search providers: %w", err)
	}

	ids := []string{}
	if result.Hits == nil {
		return ids, nil
	}
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		if id, ok := (*hit.Document)["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func infixModes() string {
	modes := make([]string, len(searchFields))
	for i := range modes {
		modes[i] = "always"
	}
	return strings.Join(modes, ",")
}

// buildProviderDocument flattens a provider into the collection schema
func buildProviderDocument(p *entities.ProviderRecord) map[string]interface{} {
	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, r.Name)
		if r.Code != "" {
			roles = append(roles, r.Code)
		}
	}

	doc := map[string]interface{}{
		"id":      p.ID,
		"name":    p.Name,
		"regions": nonNil(p.Regions),
		"roles":   roles,
	}
	for field, value := range map[string]string{
		"neighborhood": p.Neighborhood,
		"city":         p.City,
		"state":        p.State,
	} {
		if value != "" {
			doc[field] = value
		}
	}
	if p.HasLocation() {
		doc["location"] = []float64{p.Coordinates.Latitude, p.Coordinates.Longitude}
	}
	return doc
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
