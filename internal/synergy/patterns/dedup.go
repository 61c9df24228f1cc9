package patterns

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

const (
	// consolidationWindowMinutes is how far a time pattern may sit from
	// the running cluster average and still join the cluster.
	consolidationWindowMinutes = 15.0

	// mergeConfidenceBoost is applied once to a merged cluster's base
	// confidence, capped at 1.0.
	mergeConfidenceBoost = 1.10
)

// Deduplicator merges near-duplicate behavioral patterns before they
// become synergy evidence. Time-of-day patterns get time-window
// consolidation per device; every other type gets exact-duplicate
// removal by signature. Output never exceeds input, and running the
// deduplicator on its own output changes nothing.
type Deduplicator struct {
	logger *slog.Logger
}

// NewDeduplicator creates a deduplicator.
func NewDeduplicator(logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{logger: logger}
}

// Deduplicate consolidates a pattern batch. Input patterns are never
// mutated; merged patterns are clones. Malformed patterns are dropped
// and logged rather than failing the batch.
func (d *Deduplicator) Deduplicate(input []*ontology.Pattern) []*ontology.Pattern {
	timeByDevice := make(map[string][]*ontology.Pattern)
	others := make([]*ontology.Pattern, 0, len(input))
	malformed := 0

	for _, p := range input {
		if p == nil {
			malformed++
			continue
		}
		if err := p.Validate(); err != nil {
			d.logger.Warn("Skipping malformed pattern", "error", err)
			malformed++
			continue
		}
		if p.Type == ontology.PatternTimeOfDay {
			device := p.PrimaryDevice()
			timeByDevice[device] = append(timeByDevice[device], p)
		} else {
			others = append(others, p)
		}
	}

	output := make([]*ontology.Pattern, 0, len(input))

	// Deterministic device order keeps the output stable across runs.
	devices := make([]string, 0, len(timeByDevice))
	for device := range timeByDevice {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	for _, device := range devices {
		output = append(output, d.consolidateTimePatterns(timeByDevice[device])...)
	}

	output = append(output, dedupeBySignature(others)...)

	removed := len(input) - len(output)
	d.logger.Info("Deduplicated patterns",
		"input", len(input),
		"output", len(output),
		"removed", removed,
		"malformed", malformed)

	return output
}

// consolidateTimePatterns greedily clusters one device's time patterns.
// Patterns are sorted by time of day; a pattern joins the current cluster
// while it stays within the consolidation window of the running cluster
// average, otherwise it starts a new cluster.
func (d *Deduplicator) consolidateTimePatterns(patterns []*ontology.Pattern) []*ontology.Pattern {
	if len(patterns) <= 1 {
		return patterns
	}

	sorted := append([]*ontology.Pattern(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		mi, _ := sorted[i].MinuteOfDay()
		mj, _ := sorted[j].MinuteOfDay()
		return mi < mj
	})

	var out []*ontology.Pattern
	cluster := []*ontology.Pattern{sorted[0]}
	first, _ := sorted[0].MinuteOfDay()
	clusterSum := first

	for i := 1; i < len(sorted); i++ {
		minute, _ := sorted[i].MinuteOfDay()
		avg := float64(clusterSum) / float64(len(cluster))

		if float64(minute)-avg <= consolidationWindowMinutes {
			cluster = append(cluster, sorted[i])
			clusterSum += minute
			continue
		}

		out = append(out, mergeCluster(cluster, clusterSum))
		cluster = []*ontology.Pattern{sorted[i]}
		clusterSum = minute
	}

	out = append(out, mergeCluster(cluster, clusterSum))
	return out
}

// mergeCluster collapses a cluster into a single pattern. The highest
// confidence member is the base; occurrences are summed, the time is the
// cluster average and the base confidence is boosted once, capped at 1.0.
func mergeCluster(cluster []*ontology.Pattern, clusterSum int) *ontology.Pattern {
	if len(cluster) == 1 {
		return cluster[0]
	}

	base := cluster[0]
	occurrences := 0
	for _, p := range cluster {
		occurrences += p.Occurrences
		if p.Confidence > base.Confidence {
			base = p
		}
	}

	avgMinute := clusterSum / len(cluster)

	merged := base.Clone()
	merged.Occurrences = occurrences
	merged.Confidence = base.Confidence * mergeConfidenceBoost
	if merged.Confidence > 1.0 {
		merged.Confidence = 1.0
	}
	if merged.Metadata == nil {
		merged.Metadata = make(map[string]interface{})
	}
	merged.Metadata["hour"] = avgMinute / 60
	merged.Metadata["minute"] = avgMinute % 60
	merged.Metadata["consolidated_from"] = len(cluster)

	return merged
}

// dedupeBySignature keeps the first pattern per signature.
func dedupeBySignature(input []*ontology.Pattern) []*ontology.Pattern {
	seen := make(map[string]bool, len(input))
	out := make([]*ontology.Pattern, 0, len(input))

	for _, p := range input {
		sig := signature(p)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, p)
	}
	return out
}

// signature builds the identity used for exact-duplicate removal:
// (type, device, hour, minute) for time patterns, (type, sorted pair) for
// co-occurrence, (type, device) for everything else.
func signature(p *ontology.Pattern) string {
	switch p.Type {
	case ontology.PatternTimeOfDay:
		hour, _ := p.Hour()
		minute, _ := p.Minute()
		return fmt.Sprintf("%s|%s|%02d:%02d", p.Type, p.PrimaryDevice(), hour, minute)
	case ontology.PatternCoOccurrence:
		a, b, _ := p.DevicePair()
		if a > b {
			a, b = b, a
		}
		return strings.Join([]string{string(p.Type), a, b}, "|")
	default:
		return fmt.Sprintf("%s|%s", p.Type, p.PrimaryDevice())
	}
}
