package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

// StaticProviderRepository serves a roster loaded once from a JSON document
type StaticProviderRepository struct {
	providers []*entities.ProviderRecord
	byID      map[string]*entities.ProviderRecord
}

// NewStaticProviderRepository creates a repository over an in-memory roster
func NewStaticProviderRepository(roster []*entities.ProviderRecord) *StaticProviderRepository {
	r := &StaticProviderRepository{
		providers: make([]*entities.ProviderRecord, 0, len(roster)),
		byID:      make(map[string]*entities.ProviderRecord, len(roster)),
	}
	for _, p := range roster {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := r.byID[p.ID]; dup {
			log.Warn().Str("provider_id", p.ID).Msg("duplicate provider id in roster, keeping first")
			continue
		}
		p.Roles = entities.NormalizeRoles(p.Roles)
		r.providers = append(r.providers, p)
		r.byID[p.ID] = p
	}
	return r
}

// LoadStaticProviderRepository reads a JSON array of providers from path
func LoadStaticProviderRepository(path string) (*StaticProviderRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file %s: %w", path, err)
	}
	roster, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster file %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("providers", len(roster)).Msg("loaded roster file")
	return NewStaticProviderRepository(roster), nil
}

// ParseRoster decodes a JSON array of providers
func ParseRoster(data []byte) ([]*entities.ProviderRecord, error) {
	var roster []*entities.ProviderRecord
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

var _ repositories.ProviderRepository = (*StaticProviderRepository)(nil)

// List returns the roster in file order
func (r *StaticProviderRepository) List(ctx context.Context) ([]*entities.ProviderRecord, error) {
	out := make([]*entities.ProviderRecord, len(r.providers))
	copy(out, r.providers)
	return out, nil
}

// GetByID returns a single provider
func (r *StaticProviderRepository) GetByID(ctx context.Context, id string) (*entities.ProviderRecord, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider with id %s not found", id))
	}
	return p, nil
}
