package training

import (
	"log/slog"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// PairGenerator turns known synergies into labeled training pairs.
type PairGenerator struct {
	logger *slog.Logger
}

// NewPairGenerator creates a pair generator.
func NewPairGenerator(logger *slog.Logger) *PairGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PairGenerator{logger: logger}
}

// Positives emits one pair per unordered 2-combination of each synergy's
// devices, labeled with the synergy's confidence (1.0 when unset) so the
// weak supervision survives. Pairs are deduplicated by canonical key,
// first occurrence wins. Invalid synergies are skipped and logged, never
// fatal to the batch.
func (pg *PairGenerator) Positives(synergies []ontology.Synergy) []ontology.TrainingPair {
	seen := make(map[string]bool)
	pairs := make([]ontology.TrainingPair, 0, len(synergies))

	skipped := 0
	for i := range synergies {
		syn := &synergies[i]
		if err := syn.Validate(); err != nil {
			pg.logger.Warn("Skipping invalid synergy", "error", err)
			skipped++
			continue
		}

		label := syn.Label()
		for a := 0; a < len(syn.DeviceIDs); a++ {
			for b := a + 1; b < len(syn.DeviceIDs); b++ {
				key := ontology.PairKey(syn.DeviceIDs[a], syn.DeviceIDs[b])
				if seen[key] {
					continue
				}
				seen[key] = true
				pairs = append(pairs, ontology.TrainingPair{
					DeviceA: syn.DeviceIDs[a],
					DeviceB: syn.DeviceIDs[b],
					Label:   label,
				})
			}
		}
	}

	if skipped > 0 {
		pg.logger.Warn("Skipped invalid synergies during pair generation", "count", skipped)
	}
	return pairs
}
