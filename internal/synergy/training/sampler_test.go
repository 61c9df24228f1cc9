package training

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

func samplerEntities() []ontology.Entity {
	return []ontology.Entity{
		{EntityID: "light.bedroom", Domain: "light", AreaID: "bedroom"},
		{EntityID: "binary_sensor.motion_bedroom", Domain: "binary_sensor", AreaID: "bedroom"},
		{EntityID: "light.kitchen", Domain: "light", AreaID: "kitchen"},
		{EntityID: "sensor.temp_garage", Domain: "sensor", AreaID: "garage"},
		{EntityID: "media_player.tv", Domain: "media_player", AreaID: "living_room"},
	}
}

func samplerSynergies() []ontology.Synergy {
	return []ontology.Synergy{
		{ID: "syn-1", DeviceIDs: []string{"light.bedroom", "binary_sensor.motion_bedroom"}, Confidence: 0.9},
	}
}

func TestNegativesExcludeSynergyAndAffinityPairs(t *testing.T) {
	sampler := NewHeuristicNegativeSampler(7, slog.Default())

	negatives := sampler.Negatives(samplerEntities(), samplerSynergies(), 100)

	require.NotEmpty(t, negatives)
	for _, pair := range negatives {
		assert.Equal(t, 0.0, pair.Label)
		assert.NotEqual(t, ontology.PairKey("light.bedroom", "binary_sensor.motion_bedroom"), pair.Key(),
			"synergy pair must never appear as a negative")
	}
}

func TestNegativesStopAtPoolExhaustion(t *testing.T) {
	sampler := NewHeuristicNegativeSampler(7, slog.Default())

	// 5 entities → 10 unordered pairs, minus the one excluded pair.
	negatives := sampler.Negatives(samplerEntities(), samplerSynergies(), 100)
	assert.Len(t, negatives, 9)
}

func TestNegativesHonorRequestedCount(t *testing.T) {
	sampler := NewHeuristicNegativeSampler(7, slog.Default())

	negatives := sampler.Negatives(samplerEntities(), samplerSynergies(), 4)
	assert.Len(t, negatives, 4)
}

func TestNegativesNoDuplicates(t *testing.T) {
	sampler := NewHeuristicNegativeSampler(7, slog.Default())

	negatives := sampler.Negatives(samplerEntities(), samplerSynergies(), 100)

	keys := make(map[string]bool)
	for _, pair := range negatives {
		assert.False(t, keys[pair.Key()], "duplicate pair %s", pair.Key())
		keys[pair.Key()] = true
	}
}

func TestNegativesDeterministicForSeed(t *testing.T) {
	a := NewHeuristicNegativeSampler(42, slog.Default()).
		Negatives(samplerEntities(), samplerSynergies(), 5)
	b := NewHeuristicNegativeSampler(42, slog.Default()).
		Negatives(samplerEntities(), samplerSynergies(), 5)

	assert.Equal(t, a, b)
}

func TestNegativesZeroRequested(t *testing.T) {
	sampler := NewHeuristicNegativeSampler(7, slog.Default())
	assert.Empty(t, sampler.Negatives(samplerEntities(), samplerSynergies(), 0))
}

func TestNegativesSkipInvalidEntities(t *testing.T) {
	sampler := NewHeuristicNegativeSampler(7, slog.Default())

	entities := append(samplerEntities(), ontology.Entity{EntityID: "", Domain: "light", AreaID: "attic"})
	negatives := sampler.Negatives(entities, samplerSynergies(), 100)

	for _, pair := range negatives {
		assert.NotEmpty(t, pair.DeviceA)
		assert.NotEmpty(t, pair.DeviceB)
	}
	assert.Len(t, negatives, 9)
}
