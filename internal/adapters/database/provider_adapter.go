package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

const providersTable = "providers"

const providersSchema = `
CREATE TABLE IF NOT EXISTS providers (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	phone         TEXT,
	neighborhood  TEXT,
	city          TEXT,
	state         TEXT,
	regions       TEXT[] NOT NULL DEFAULT '{}',
	roles         JSONB NOT NULL DEFAULT '[]',
	antenna_model TEXT,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

var providerColumns = []interface{}{
	"id", "name", "latitude", "longitude", "phone", "neighborhood",
	"city", "state", "regions", "roles", "antenna_model",
}

// ProviderAdapter reads the provider roster from Postgres
type ProviderAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProviderAdapter creates a new provider adapter
func NewProviderAdapter(client *postgres.Client) *ProviderAdapter {
	return &ProviderAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var _ repositories.ProviderRepository = (*ProviderAdapter)(nil)

// EnsureSchema creates the providers table when missing
func (a *ProviderAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.client.DB().ExecContext(ctx, providersSchema); err != nil {
		return apperrors.NewInternalError("failed to create providers table", err)
	}
	return nil
}

// List returns the full roster ordered by name
func (a *ProviderAdapter) List(ctx context.Context) ([]*entities.ProviderRecord, error) {
	query, args, err := a.db.From(providersTable).
		Prepared(true).
		Select(providerColumns...).
		Order(goqu.C("name").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build provider list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list providers", err)
	}
	defer rows.Close()

	providers := make([]*entities.ProviderRecord, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate providers", err)
	}

	return providers, nil
}

// GetByID returns a single provider
func (a *ProviderAdapter) GetByID(ctx context.Context, id string) (*entities.ProviderRecord, error) {
	query, args, err := a.db.From(providersTable).
		Prepared(true).
		Select(providerColumns...).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build provider query", err)
	}

	p, err := scanProvider(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider with id %s not found", id))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert inserts or updates providers by id
func (a *ProviderAdapter) Upsert(ctx context.Context, providers []*entities.ProviderRecord) error {
	if len(providers) == 0 {
		return nil
	}

	rows := make([]interface{}, 0, len(providers))
	for _, p := range providers {
		roles, err := json.Marshal(entities.NormalizeRoles(p.Roles))
		if err != nil {
			return apperrors.NewInternalError("failed to encode provider roles", err)
		}
		record := goqu.Record{
			"id":            p.ID,
			"name":          p.Name,
			"latitude":      sql.NullFloat64{},
			"longitude":     sql.NullFloat64{},
			"phone":         nullString(p.Phone),
			"neighborhood":  nullString(p.Neighborhood),
			"city":          nullString(p.City),
			"state":         nullString(p.State),
			"regions":       pq.StringArray(nonNilStrings(p.Regions)),
			"roles":         string(roles),
			"antenna_model": nullString(p.AntennaModel),
		}
		if p.Coordinates != nil {
			record["latitude"] = sql.NullFloat64{Float64: p.Coordinates.Latitude, Valid: true}
			record["longitude"] = sql.NullFloat64{Float64: p.Coordinates.Longitude, Valid: true}
		}
		rows = append(rows, record)
	}

	query, args, err := a.db.Insert(providersTable).
		Prepared(true).
		Rows(rows...).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"name":          goqu.L("EXCLUDED.name"),
			"latitude":      goqu.L("EXCLUDED.latitude"),
			"longitude":     goqu.L("EXCLUDED.longitude"),
			"phone":         goqu.L("EXCLUDED.phone"),
			"neighborhood":  goqu.L("EXCLUDED.neighborhood"),
			"city":          goqu.L("EXCLUDED.city"),
			"state":         goqu.L("EXCLUDED.state"),
			"regions":       goqu.L("EXCLUDED.regions"),
			"roles":         goqu.L("EXCLUDED.roles"),
			"antenna_model": goqu.L("EXCLUDED.antenna_model"),
			"updated_at":    goqu.L("now()"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build provider upsert", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert providers", err)
	}

	log.Info().Int("count", len(providers)).Msg("upserted providers")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProvider(row rowScanner) (*entities.ProviderRecord, error) {
	var (
		p            entities.ProviderRecord
		lat, lon     sql.NullFloat64
		phone        sql.NullString
		neighborhood sql.NullString
		city         sql.NullString
		state        sql.NullString
		antenna      sql.NullString
		regions      pq.StringArray
		roles        []byte
	)

	err := row.Scan(&p.ID, &p.Name, &lat, &lon, &phone, &neighborhood, &city, &state, &regions, &roles, &antenna)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan provider", err)
	}

	if lat.Valid && lon.Valid {
		p.Coordinates = &entities.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	p.Phone = phone.String
	p.Neighborhood = neighborhood.String
	p.City = city.String
	p.State = state.String
	p.AntennaModel = antenna.String
	p.Regions = []string(regions)

	decoded, err := entities.DecodeRoles(roles)
	if err != nil {
		// a malformed roles column must not hide the provider from the roster
		log.Warn().Err(err).Str("provider_id", p.ID).Msg("ignoring undecodable provider roles")
	}
	p.Roles = decoded

	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
