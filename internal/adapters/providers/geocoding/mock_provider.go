package geocoding

import (
	"context"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

type gazetteerEntry struct {
	names  []string
	result providers.GeocodeResult
}

// gazetteer is a small fixed set of places used in development and tests
var gazetteer = []gazetteerEntry{
	{names: []string{"avenida paulista", "paulista"}, result: providers.GeocodeResult{Latitude: -23.5614, Longitude: -46.6559, Label: "Avenida Paulista, São Paulo - SP"}},
	{names: []string{"01310-100", "01310100"}, result: providers.GeocodeResult{Latitude: -23.5613, Longitude: -46.6565, Label: "01310-100, Bela Vista, São Paulo - SP"}},
	{names: []string{"santo amaro"}, result: providers.GeocodeResult{Latitude: -23.6542, Longitude: -46.7069, Label: "Santo Amaro, São Paulo - SP"}},
	{names: []string{"são paulo", "sao paulo"}, result: providers.GeocodeResult{Latitude: -23.5505, Longitude: -46.6333, Label: "São Paulo - SP"}},
	{names: []string{"campinas"}, result: providers.GeocodeResult{Latitude: -22.9099, Longitude: -47.0626, Label: "Campinas - SP"}},
	{names: []string{"copacabana"}, result: providers.GeocodeResult{Latitude: -22.9711, Longitude: -43.1822, Label: "Copacabana, Rio de Janeiro - RJ"}},
	{names: []string{"rio de janeiro"}, result: providers.GeocodeResult{Latitude: -22.9068, Longitude: -43.1729, Label: "Rio de Janeiro - RJ"}},
	{names: []string{"belo horizonte"}, result: providers.GeocodeResult{Latitude: -19.9167, Longitude: -43.9345, Label: "Belo Horizonte - MG"}},
	{names: []string{"curitiba"}, result: providers.GeocodeResult{Latitude: -25.4284, Longitude: -49.2733, Label: "Curitiba - PR"}},
	{names: []string{"manaus"}, result: providers.GeocodeResult{Latitude: -3.1190, Longitude: -60.0217, Label: "Manaus - AM"}},
}

// MockProvider implements GeocodingProvider over a fixed gazetteer. Unknown
// text resolves to no results.
type MockProvider struct{}

// NewMockProvider creates a new mock geocoding provider
func NewMockProvider() providers.GeocodingProvider {
	return &MockProvider{}
}

// Search returns gazetteer entries whose name appears in text, or whose name
// starts with text, in gazetteer order
func (m *MockProvider) Search(ctx context.Context, text string, limit int) ([]providers.GeocodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	results := []providers.GeocodeResult{}
	if needle == "" {
		return results, nil
	}
	if limit <= 0 {
		limit = 1
	}

	for _, entry := range gazetteer {
		for _, name := range entry.names {
			if strings.Contains(needle, name) || strings.HasPrefix(name, needle) {
				results = append(results, entry.result)
				break
			}
		}
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
