package training

import (
	"math/rand"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// Split shuffles a copy of the pairs with a seeded source and carves off
// valFraction of them for validation. Every input pair lands in exactly
// one of the two outputs. At least one pair always stays in the training
// half; a non-positive fraction yields an empty validation set.
func Split(pairs []ontology.TrainingPair, valFraction float64, seed int64) (train, val []ontology.TrainingPair) {
	if len(pairs) == 0 {
		return nil, nil
	}
	if seed == 0 {
		seed = 1
	}

	shuffled := append([]ontology.TrainingPair(nil), pairs...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	valCount := 0
	if valFraction > 0 {
		valCount = int(float64(len(shuffled)) * valFraction)
	}
	if valCount >= len(shuffled) {
		valCount = len(shuffled) - 1
	}

	return shuffled[valCount:], shuffled[:valCount]
}
