package redis

import "fmt"

// Key construction helpers for the synergy pipeline

// ScoreCacheKey returns the key caching one pair's synergy score (string)
// Pattern: synergy:score:{model_version}:{pair_key}
// The model version is part of the key so a retrain or rollback starts
// from a clean namespace without explicit invalidation.
func ScoreCacheKey(modelVersion, pairKey string) string {
	return fmt.Sprintf("synergy:score:%s:%s", modelVersion, pairKey)
}

// SuggestionKey returns the key for an area's suggestion leaderboard (sorted set)
// Pattern: synergy:suggestions:{area}
func SuggestionKey(area string) string {
	if area == "" {
		area = "unassigned"
	}
	return fmt.Sprintf("synergy:suggestions:%s", area)
}

// AcceptanceKey returns the key mirroring acceptance counters for one
// pattern type and confidence band (hash with total/accepted fields)
// Pattern: feedback:acceptance:{pattern_type}:{band}
func AcceptanceKey(patternType, band string) string {
	return fmt.Sprintf("feedback:acceptance:%s:%s", patternType, band)
}
