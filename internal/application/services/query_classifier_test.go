package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

func TestQueryClassifier_Classify(t *testing.T) {
	classifier, err := services.NewQueryClassifier("")
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		kind  entities.QueryKind
	}{
		{name: "coordinate pair", query: "-23.5505, -46.6333", kind: entities.QueryKindCoordinate},
		{name: "coordinate with signs and padding", query: "  +10.5 ,20  ", kind: entities.QueryKindCoordinate},
		{name: "integer coordinates", query: "0,0", kind: entities.QueryKindCoordinate},
		{name: "latitude out of range", query: "91.0,10", kind: entities.QueryKindFreeText},
		{name: "longitude out of range", query: "10,-180.5", kind: entities.QueryKindFreeText},
		{name: "postal code with dash", query: "01310-100", kind: entities.QueryKindPostalCode},
		{name: "postal code without dash", query: " 01310100 ", kind: entities.QueryKindPostalCode},
		{name: "short digits", query: "0131", kind: entities.QueryKindFreeText},
		{name: "address", query: "Avenida Paulista, 1000", kind: entities.QueryKindFreeText},
		{name: "empty", query: "", kind: entities.QueryKindFreeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := classifier.Classify(tt.query)
			assert.Equal(t, tt.kind, q.Kind)
			assert.Equal(t, tt.query, q.Raw)
		})
	}
}

func TestQueryClassifier_CoordinateCarriesParsedPair(t *testing.T) {
	classifier, err := services.NewQueryClassifier("")
	require.NoError(t, err)

	q := classifier.Classify(" -23.5505 , -46.6333 ")

	require.NotNil(t, q.Coordinates)
	assert.Equal(t, -23.5505, q.Coordinates.Latitude)
	assert.Equal(t, -46.6333, q.Coordinates.Longitude)
	assert.Equal(t, "-23.5505,-46.6333", q.Normalized)
}

func TestQueryClassifier_FreeTextCollapsesWhitespace(t *testing.T) {
	classifier, err := services.NewQueryClassifier("")
	require.NoError(t, err)

	q := classifier.Classify("  santo   amaro ")
	assert.Equal(t, "santo amaro", q.Normalized)
	assert.Nil(t, q.Coordinates)
}

func TestQueryClassifier_CustomPostalPattern(t *testing.T) {
	classifier, err := services.NewQueryClassifier(`^\d{5}$`)
	require.NoError(t, err)

	assert.Equal(t, entities.QueryKindPostalCode, classifier.Classify("90210").Kind)
	assert.Equal(t, entities.QueryKindFreeText, classifier.Classify("01310-100").Kind)
}

func TestNewQueryClassifier_RejectsInvalidPattern(t *testing.T) {
	_, err := services.NewQueryClassifier(`^\d{5`)
	assert.Error(t, err)
}
