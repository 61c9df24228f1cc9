package spatial

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// AdjacencyStrategy decides whether two named areas are physically
// adjacent. The default is a name heuristic; a floor-plan backed
// implementation can replace it without touching callers.
type AdjacencyStrategy interface {
	Adjacent(a, b string) bool
}

// commonRoomKeywords are fragments of room names that usually denote
// connective spaces: two areas sharing one are treated as adjacent.
var commonRoomKeywords = []string{
	"hall",
	"living",
	"kitchen",
	"dining",
	"landing",
	"corridor",
	"entry",
	"stair",
}

// NameHeuristicStrategy infers adjacency from area names alone:
// substring containment ("kitchen" / "kitchen_island") or a shared
// common-room keyword ("upstairs_hall" / "hallway").
type NameHeuristicStrategy struct{}

// Adjacent implements AdjacencyStrategy. It is symmetric and false for
// identical or empty names.
func (NameHeuristicStrategy) Adjacent(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}

	na := strings.ToLower(a)
	nb := strings.ToLower(b)
	if na == nb {
		return false
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	for _, keyword := range commonRoomKeywords {
		if strings.Contains(na, keyword) && strings.Contains(nb, keyword) {
			return true
		}
	}
	return false
}

// Validation is the spatial verdict on a synergy. Cross-area synergies
// are never hard-rejected, only annotated, so Valid is true in every
// case this service produces.
type Validation struct {
	Valid    bool     `json:"valid"`
	SameArea bool     `json:"same_area"`
	Areas    []string `json:"areas,omitempty"`
	Adjacent bool     `json:"adjacent"`
	Reason   string   `json:"reason,omitempty"`
}

// Service builds an area-adjacency graph from entity snapshots and
// validates whether cross-area synergies are spatially plausible.
// BuildGraph replaces the graph wholesale; the service is read-only
// between builds.
type Service struct {
	strategy  AdjacencyStrategy
	areas     []string
	adjacency map[string]map[string]bool
	logger    *slog.Logger
}

// NewService creates a spatial service. A nil strategy falls back to
// the name heuristic.
func NewService(strategy AdjacencyStrategy, logger *slog.Logger) *Service {
	if strategy == nil {
		strategy = NameHeuristicStrategy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		strategy:  strategy,
		adjacency: make(map[string]map[string]bool),
		logger:    logger,
	}
}

// BuildGraph derives the area-adjacency graph from the distinct areas
// in an entity snapshot. Returns the number of areas seen.
func (s *Service) BuildGraph(entities []ontology.Entity) int {
	seen := make(map[string]bool)
	for _, entity := range entities {
		if entity.AreaID != "" {
			seen[entity.AreaID] = true
		}
	}

	areas := make([]string, 0, len(seen))
	for area := range seen {
		areas = append(areas, area)
	}
	sort.Strings(areas)

	adjacency := make(map[string]map[string]bool, len(areas))
	for _, area := range areas {
		adjacency[area] = make(map[string]bool)
	}

	edges := 0
	for i := 0; i < len(areas); i++ {
		for j := i + 1; j < len(areas); j++ {
			if s.strategy.Adjacent(areas[i], areas[j]) {
				adjacency[areas[i]][areas[j]] = true
				adjacency[areas[j]][areas[i]] = true
				edges++
			}
		}
	}

	s.areas = areas
	s.adjacency = adjacency

	s.logger.Info("Built area adjacency graph", "areas", len(areas), "adjacent_pairs", edges)
	return len(areas)
}

// Areas returns the areas the graph was built over, sorted.
func (s *Service) Areas() []string {
	return s.areas
}

// AreAdjacent reports whether two areas are adjacent. It is symmetric
// and always false for an area against itself.
func (s *Service) AreAdjacent(a, b string) bool {
	if a == b {
		return false
	}
	return s.adjacency[a][b]
}

// ValidateCrossAreaSynergy checks a synergy's spatial plausibility.
// Same-area synergies are always valid. Cross-area synergies stay valid
// but carry a reason string when the areas are not adjacent, so callers
// can surface the doubt without discarding the synergy.
func (s *Service) ValidateCrossAreaSynergy(syn ontology.Synergy, entities []ontology.Entity) Validation {
	areaByDevice := make(map[string]string, len(entities))
	for _, entity := range entities {
		areaByDevice[entity.EntityID] = entity.AreaID
	}

	distinct := make(map[string]bool)
	for _, device := range syn.DeviceIDs {
		if area := areaByDevice[device]; area != "" {
			distinct[area] = true
		}
	}

	areas := make([]string, 0, len(distinct))
	for area := range distinct {
		areas = append(areas, area)
	}
	sort.Strings(areas)

	if len(areas) <= 1 {
		return Validation{Valid: true, SameArea: true, Areas: areas, Adjacent: true}
	}

	// All involved area pairs must be adjacent for the synergy to count
	// as spatially close; any non-adjacent pair is annotated.
	for i := 0; i < len(areas); i++ {
		for j := i + 1; j < len(areas); j++ {
			if !s.AreAdjacent(areas[i], areas[j]) {
				return Validation{
					Valid:    true,
					SameArea: false,
					Areas:    areas,
					Adjacent: false,
					Reason: fmt.Sprintf("areas %q and %q are not adjacent; cross-area synergy kept but flagged",
						areas[i], areas[j]),
				}
			}
		}
	}

	return Validation{Valid: true, SameArea: false, Areas: areas, Adjacent: true}
}
