package graph

import (
	"math"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// FeatureDim is the fixed width of every node feature vector.
//
// Dimensions breakdown:
// [0-11]:  domain one-hot (known domains, last slot = other)
// [12-27]: area encoding (FNV-1a hashed)
// [28-31]: usage-frequency bucket one-hot
const FeatureDim = 32

// domainSlot maps the common Home Assistant domains to their one-hot slot.
// Anything else lands in slot 11.
var domainSlot = map[string]int{
	"light":         0,
	"switch":        1,
	"sensor":        2,
	"binary_sensor": 3,
	"climate":       4,
	"media_player":  5,
	"cover":         6,
	"lock":          7,
	"fan":           8,
	"vacuum":        9,
	"camera":        10,
}

const otherDomainSlot = 11

// ComputeNodeFeatures derives the feature vector for one entity.
// usageCount is how many known synergies reference the entity.
func ComputeNodeFeatures(entity ontology.Entity, usageCount int) []float32 {
	features := make([]float32, FeatureDim)

	// [0-11]: domain one-hot
	slot, ok := domainSlot[entity.EffectiveDomain()]
	if !ok {
		slot = otherDomainSlot
	}
	features[slot] = 1.0

	// [12-27]: area encoding
	areaVec := encodeArea(entity.AreaID)
	copy(features[12:28], areaVec)

	// [28-31]: usage-frequency bucket
	features[28+usageBucket(usageCount)] = 1.0

	return features
}

// encodeArea converts an area id to a 16-dimensional vector.
// Uses FNV-1a hash for deterministic encoding; the empty area maps to
// the zero vector so unassigned devices share no spatial signal.
func encodeArea(areaID string) []float32 {
	vec := make([]float32, 16)
	if areaID == "" {
		return vec
	}

	hash := fnv1aHash(areaID)

	// Extract 16 values from hash, normalized to [-0.5, 0.5]
	for i := 0; i < 16; i++ {
		vec[i] = float32((hash>>(i*4))&15)/15.0 - 0.5
	}

	return vec
}

// fnv1aHash computes FNV-1a hash (deterministic, good distribution)
func fnv1aHash(s string) uint64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, c := range s {
		h ^= uint64(c)
		h *= 1099511628211 // FNV prime
	}
	return h
}

// usageBucket maps a synergy-reference count to a coarse bucket.
// 0 references, 1, 2-3, 4+.
func usageBucket(count int) int {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return 1
	case count <= 3:
		return 2
	default:
		return 3
	}
}

// CosineSimilarity computes the cosine similarity of two feature vectors.
// Returns 0 when either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
