package services

import (
	"math"
	"sort"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

// RankingProfile is a radius and result cap pair chosen by the caller
type RankingProfile struct {
	MaxRadiusKm float64
	MaxResults  int
}

// ProximityRanker orders roster entries by great-circle distance from a reference point
type ProximityRanker struct{}

// NewProximityRanker creates a new ranker
func NewProximityRanker() *ProximityRanker {
	return &ProximityRanker{}
}

// Rank returns the providers within maxRadiusKm of ref, nearest first, at most
// maxResults of them. Providers without usable coordinates are skipped.
func (r *ProximityRanker) Rank(ref *entities.ReferencePoint, roster []*entities.ProviderRecord, maxRadiusKm float64, maxResults int) []entities.RankedCandidate {
	candidates := make([]entities.RankedCandidate, 0)
	if ref == nil || len(roster) == 0 || maxRadiusKm <= 0 || maxResults <= 0 {
		return candidates
	}

	origin := ref.Coordinates()
	for _, p := range roster {
		if !p.HasLocation() {
			continue
		}
		d := origin.DistanceKm(*p.Coordinates)
		if math.IsNaN(d) || d > maxRadiusKm {
			continue
		}
		candidates = append(candidates, entities.RankedCandidate{Provider: p, DistanceKm: d})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates
}
