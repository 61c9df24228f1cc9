package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
)

// ErrMalformedPair is returned when a device pair is not two distinct,
// non-empty entity ids. Pair validation happens before any model or
// graph access.
var ErrMalformedPair = errors.New("model: malformed device pair")

const (
	// fallbackConfidence is reported when the untrained heuristic
	// answers instead of the network.
	fallbackConfidence = 0.3

	// fallbackEdgeBase is the floor score for graph-adjacent pairs in
	// the heuristic.
	fallbackEdgeBase = 0.6
)

// Prediction is one scored device pair.
type Prediction struct {
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Fallback    bool    `json:"fallback,omitempty"`
}

// ValidatePair rejects pairs that are not two distinct non-empty entity
// ids.
func ValidatePair(a, b string) error {
	if a == "" || b == "" {
		return fmt.Errorf("%w: empty entity id", ErrMalformedPair)
	}
	if a == b {
		return fmt.Errorf("%w: %q paired with itself", ErrMalformedPair, a)
	}
	return nil
}

// Predict scores one device pair against the current graph. An
// untrained scorer answers with a deterministic heuristic over graph
// adjacency and feature similarity instead of erroring, at reduced
// confidence. Devices missing from the graph contribute zero features,
// so the score stays usable. Scores are order-independent:
// Predict(a,b) == Predict(b,a).
func (s *Scorer) Predict(g *graph.DeviceGraph, deviceA, deviceB string) (Prediction, error) {
	if err := ValidatePair(deviceA, deviceB); err != nil {
		return Prediction{}, err
	}

	fa, okA := g.Features(deviceA)
	fb, okB := g.Features(deviceB)
	if !okA {
		fa = make([]float32, graph.FeatureDim)
	}
	if !okB {
		fb = make([]float32, graph.FeatureDim)
	}

	adjacent := g.HasEdge(deviceA, deviceB)

	if !s.trained {
		return s.fallbackPredict(fa, fb, adjacent, okA && okB), nil
	}

	_, score := s.forward(pairFeatures(deviceA, deviceB, fa, fb))

	// Confidence grows with distance from the 0.5 decision boundary.
	confidence := 0.5 + math.Abs(2*score-1)/2

	explanation := fmt.Sprintf("pairwise network (%d hidden layers of %d); graph adjacency: %t",
		s.cfg.NumLayers, s.cfg.HiddenDim, adjacent)
	if !okA || !okB {
		explanation += "; one or both devices missing from graph"
	}

	return Prediction{Score: score, Confidence: confidence, Explanation: explanation}, nil
}

// fallbackPredict blends graph adjacency with cosine feature similarity
// into a deterministic score for untrained models.
func (s *Scorer) fallbackPredict(fa, fb []float32, adjacent, known bool) Prediction {
	// Cosine in [-1,1] mapped to [0,1].
	similarity := (graph.CosineSimilarity(fa, fb) + 1) / 2

	var score float64
	if adjacent {
		score = fallbackEdgeBase + (1-fallbackEdgeBase)*similarity
	} else {
		score = fallbackEdgeBase * similarity
	}

	explanation := fmt.Sprintf("untrained fallback: adjacency=%t, feature similarity=%.2f", adjacent, similarity)
	if !known {
		explanation += "; one or both devices missing from graph"
	}

	return Prediction{
		Score:       clamp01(score),
		Confidence:  fallbackConfidence,
		Explanation: explanation,
		Fallback:    true,
	}
}

// pairFeatures builds the order-independent network input
// [fa ; fb ; fa*fb ; |fa-fb|], canonicalizing the pair so (a,b) and
// (b,a) produce identical vectors.
func pairFeatures(deviceA, deviceB string, fa, fb []float32) []float64 {
	if deviceB < deviceA {
		fa, fb = fb, fa
	}

	input := make([]float64, InputDim)
	for i := 0; i < graph.FeatureDim; i++ {
		a := float64(fa[i])
		b := float64(fb[i])
		input[i] = a
		input[graph.FeatureDim+i] = b
		input[2*graph.FeatureDim+i] = a * b
		input[3*graph.FeatureDim+i] = math.Abs(a - b)
	}
	return input
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
