package training

import (
	"log/slog"
	"math/rand"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// NegativeSampler synthesizes label-0 pairs for training. Negatives are
// derived per run and never persisted as synergies.
type NegativeSampler interface {
	Negatives(entities []ontology.Entity, synergies []ontology.Synergy, numNegative int) []ontology.TrainingPair
}

// HeuristicNegativeSampler samples device pairs that appear in no known
// synergy and would not receive a co-location edge either, so the
// negatives sit clearly outside the positive signal. Sampling is
// deterministic for a given seed and input order.
type HeuristicNegativeSampler struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// NewHeuristicNegativeSampler creates a sampler with its own seeded
// source. Seed 0 falls back to 1 so the zero value is still
// reproducible.
func NewHeuristicNegativeSampler(seed int64, logger *slog.Logger) *HeuristicNegativeSampler {
	if seed == 0 {
		seed = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeuristicNegativeSampler{
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Negatives collects up to numNegative label-0 pairs, stopping early when
// the candidate pool is exhausted. The pool is every unordered entity
// pair minus synergy-referenced pairs and affinity (co-located) pairs;
// enumeration guarantees no duplicates.
func (s *HeuristicNegativeSampler) Negatives(entities []ontology.Entity, synergies []ontology.Synergy, numNegative int) []ontology.TrainingPair {
	if numNegative <= 0 {
		return nil
	}

	excluded := make(map[string]bool)
	for _, syn := range synergies {
		for a := 0; a < len(syn.DeviceIDs); a++ {
			for b := a + 1; b < len(syn.DeviceIDs); b++ {
				excluded[ontology.PairKey(syn.DeviceIDs[a], syn.DeviceIDs[b])] = true
			}
		}
	}

	var pool []ontology.TrainingPair
	for i := 0; i < len(entities); i++ {
		if !entities[i].Valid() {
			continue
		}
		for j := i + 1; j < len(entities); j++ {
			if !entities[j].Valid() {
				continue
			}
			if excluded[ontology.PairKey(entities[i].EntityID, entities[j].EntityID)] {
				continue
			}
			if graph.AffinityPair(entities[i], entities[j]) {
				continue
			}
			pool = append(pool, ontology.TrainingPair{
				DeviceA: entities[i].EntityID,
				DeviceB: entities[j].EntityID,
				Label:   0.0,
			})
		}
	}

	s.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	if numNegative > len(pool) {
		s.logger.Debug("Negative pool exhausted",
			"requested", numNegative,
			"available", len(pool))
		numNegative = len(pool)
	}
	return pool[:numNegative]
}
