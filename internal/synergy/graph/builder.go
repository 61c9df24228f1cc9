package graph

import (
	"log/slog"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// domainAffinity lists unordered domain pairs that plausibly automate
// together when they share an area (motion sensor and light, presence and
// lock, and so on). Keys are ordered lexicographically.
var domainAffinity = map[[2]string]bool{
	{"binary_sensor", "light"}:        true,
	{"light", "sensor"}:               true,
	{"light", "switch"}:               true,
	{"light", "media_player"}:         true,
	{"climate", "sensor"}:             true,
	{"fan", "sensor"}:                 true,
	{"binary_sensor", "lock"}:         true,
	{"binary_sensor", "camera"}:       true,
	{"cover", "sensor"}:               true,
	{"binary_sensor", "media_player"}: true,
}

// AffinityPair reports whether two entities share an area and form a
// domain pair worth connecting. This is the same heuristic the builder
// uses for co-location edges, exposed so negative sampling can exclude
// exactly the pairs that would have received an edge.
func AffinityPair(a, b ontology.Entity) bool {
	if a.AreaID == "" || a.AreaID != b.AreaID {
		return false
	}
	da, db := a.EffectiveDomain(), b.EffectiveDomain()
	if da > db {
		da, db = db, da
	}
	return domainAffinity[[2]string{da, db}]
}

// Builder constructs device graphs from entity snapshots and known
// synergies.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// Build assembles a device graph. Nodes are indexed densely in first-seen
// order; entities without an entity_id are skipped. Edges connect devices
// referenced by the same synergy and same-area devices whose domains form
// an affinity pair.
func (b *Builder) Build(entities []ontology.Entity, synergies []ontology.Synergy) *DeviceGraph {
	g := &DeviceGraph{
		NodeIndex: make(map[string]int),
		edgeSet:   make(map[[2]int]struct{}),
	}

	// Count synergy references per device for the usage-frequency bucket.
	usage := make(map[string]int)
	for _, syn := range synergies {
		for _, id := range syn.DeviceIDs {
			usage[id]++
		}
	}

	skipped := 0
	kept := make([]ontology.Entity, 0, len(entities))
	for _, entity := range entities {
		if !entity.Valid() {
			skipped++
			continue
		}
		if _, seen := g.NodeIndex[entity.EntityID]; seen {
			continue
		}
		g.NodeIndex[entity.EntityID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, entity.EntityID)
		g.NodeFeatures = append(g.NodeFeatures, ComputeNodeFeatures(entity, usage[entity.EntityID]))
		kept = append(kept, entity)
	}

	if skipped > 0 {
		b.logger.Debug("Skipped entities without entity_id", "count", skipped)
	}

	// Synergy edges: every unordered 2-combination of a synergy's devices.
	for _, syn := range synergies {
		for i := 0; i < len(syn.DeviceIDs); i++ {
			for j := i + 1; j < len(syn.DeviceIDs); j++ {
				ia, ok := g.NodeIndex[syn.DeviceIDs[i]]
				if !ok {
					continue
				}
				ib, ok := g.NodeIndex[syn.DeviceIDs[j]]
				if !ok {
					continue
				}
				g.addEdge(ia, ib)
			}
		}
	}

	// Co-location edges: same area plus domain affinity.
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			if AffinityPair(kept[i], kept[j]) {
				g.addEdge(g.NodeIndex[kept[i].EntityID], g.NodeIndex[kept[j].EntityID])
			}
		}
	}

	b.logger.Info("Built device graph",
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"synergies", len(synergies))

	return g
}
