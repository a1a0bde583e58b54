package database_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/database"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

const rosterFixture = `[
	{"id": "p-1", "name": "Antenas Sul", "coordinates": {"latitude": -23.61, "longitude": -46.69},
	 "city": "São Paulo", "regions": ["Zona Sul"], "roles": ["installer", {"label": "Rigger"}]},
	{"id": "p-2", "name": "Sinal Norte", "city": "Manaus", "regions": [], "roles": []},
	{"id": "p-1", "name": "Duplicate", "regions": [], "roles": []},
	{"id": "", "name": "No id", "regions": [], "roles": []}
]`

func TestLoadStaticProviderRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(rosterFixture), 0o600))

	repo, err := database.LoadStaticProviderRepository(path)
	require.NoError(t, err)

	roster, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Antenas Sul", roster[0].Name)
	assert.Equal(t, "Sinal Norte", roster[1].Name)
	assert.Len(t, roster[0].Roles, 2)

	p, err := repo.GetByID(context.Background(), "p-2")
	require.NoError(t, err)
	assert.Equal(t, "Manaus", p.City)

	_, err = repo.GetByID(context.Background(), "p-9")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestLoadStaticProviderRepository_Errors(t *testing.T) {
	_, err := database.LoadStaticProviderRepository(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": "p-1"}`), 0o600))
	_, err = database.LoadStaticProviderRepository(path)
	assert.Error(t, err)
}

func TestStaticProviderRepository_ListReturnsCopy(t *testing.T) {
	repo := database.NewStaticProviderRepository(nil)
	roster, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, roster)
}
