package services

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultRequestTimeout bounds every collaborator call made on behalf of a search
const DefaultRequestTimeout = 10 * time.Second

// maxIndexHits is the page size requested from the roster text index
const maxIndexHits = 250

// LocationResolver turns a classified query into a reference point, and matches the
// roster by text when no reference point can be found.
type LocationResolver struct {
	geocoder providers.GeocodingProvider
	index    repositories.ProviderSearchRepository
	timeout  time.Duration
	metrics  *observability.Metrics
}

// NewLocationResolver creates a resolver. index may be nil, in which case LocalSearch
// always matches in process.
func NewLocationResolver(
	geocoder providers.GeocodingProvider,
	index repositories.ProviderSearchRepository,
	timeout time.Duration,
	metrics *observability.Metrics,
) *LocationResolver {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &LocationResolver{
		geocoder: geocoder,
		index:    index,
		timeout:  timeout,
		metrics:  metrics,
	}
}

// Resolve returns the reference point for a query, or nil when none could be found.
// Coordinates resolve without any network call. Geocoding failures are logged and
// yield nil; only a malformed collaborator response is returned as an error, and the
// caller still degrades to local search.
func (r *LocationResolver) Resolve(ctx context.Context, query entities.ClassifiedQuery) (*entities.ReferencePoint, error) {
	if query.Kind == entities.QueryKindCoordinate && query.Coordinates != nil {
		return entities.NewReferencePoint(
			query.Coordinates.Latitude,
			query.Coordinates.Longitude,
			query.Normalized,
			entities.ReferenceSourceQuery,
		), nil
	}

	if query.Normalized == "" || r.geocoder == nil {
		return nil, nil
	}

	ctx, span := observability.StartSpan(ctx, "LocationResolver.Resolve")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results, err := r.geocoder.Search(callCtx, query.Normalized, 1)
	if err != nil {
		observability.RecordGeocode(ctx, r.metrics, "error")
		observability.RecordError(span, err)
		log.Warn().Ctx(ctx).Err(err).Str("kind", string(query.Kind)).Msg("geocoding failed, falling back to local search")
		if apperrors.IsType(err, apperrors.ErrorTypeExternal) {
			return nil, err
		}
		return nil, nil
	}
	if len(results) == 0 {
		observability.RecordGeocode(ctx, r.metrics, "empty")
		log.Debug().Ctx(ctx).Err(apperrors.NewResolutionEmptyError(query.Normalized)).Msg("no geocoding match")
		return nil, nil
	}

	observability.RecordGeocode(ctx, r.metrics, "hit")
	first := results[0]
	label := first.Label
	if label == "" {
		label = query.Normalized
	}
	return entities.NewReferencePoint(first.Latitude, first.Longitude, label, entities.ReferenceSourceQuery), nil
}

// LocalSearch returns the roster entries whose name, neighborhood, city, state,
// regions or roles contain text, ignoring case and accents. Roster order is kept.
func (r *LocationResolver) LocalSearch(ctx context.Context, text string, roster []*entities.ProviderRecord) []*entities.ProviderRecord {
	needle := foldText(text)
	matches := make([]*entities.ProviderRecord, 0)
	if needle == "" || len(roster) == 0 {
		return matches
	}

	if r.index != nil {
		ids, err := r.index.Search(ctx, text, maxIndexHits)
		if err == nil {
			wanted := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				wanted[id] = struct{}{}
			}
			for _, p := range roster {
				if _, ok := wanted[p.ID]; ok {
					matches = append(matches, p)
				}
			}
			return matches
		}
		log.Warn().Ctx(ctx).Err(err).Msg("roster index search failed, matching in process")
	}

	for _, p := range roster {
		if providerMatches(p, needle) {
			matches = append(matches, p)
		}
	}
	return matches
}

func providerMatches(p *entities.ProviderRecord, needle string) bool {
	if p == nil {
		return false
	}
	for _, field := range p.SearchableFields() {
		if strings.Contains(foldText(field), needle) {
			return true
		}
	}
	return false
}

// foldText lowercases s and strips diacritics, so "São" and "sao" compare equal
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
