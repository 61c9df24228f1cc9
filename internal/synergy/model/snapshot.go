package model

import (
	"fmt"
	"math/rand"
)

// LayerSnapshot is the serialized form of one dense layer.
type LayerSnapshot struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// Snapshot is the full serializable state of a scorer, the unit the
// version store persists and rollback restores.
type Snapshot struct {
	HiddenDim    int             `json:"hidden_dim"`
	NumLayers    int             `json:"num_layers"`
	LearningRate float64         `json:"learning_rate"`
	Seed         int64           `json:"seed"`
	InputDim     int             `json:"input_dim"`
	Trained      bool            `json:"trained"`
	Layers       []LayerSnapshot `json:"layers"`
}

// Snapshot copies the scorer's weights into a serializable value. The
// copy is deep; later training does not alter it.
func (s *Scorer) Snapshot() Snapshot {
	layers := make([]LayerSnapshot, len(s.layers))
	for l, layer := range s.layers {
		weights := make([][]float64, len(layer.weights))
		for o, row := range layer.weights {
			weights[o] = append([]float64(nil), row...)
		}
		layers[l] = LayerSnapshot{
			Weights: weights,
			Biases:  append([]float64(nil), layer.biases...),
		}
	}

	return Snapshot{
		HiddenDim:    s.cfg.HiddenDim,
		NumLayers:    s.cfg.NumLayers,
		LearningRate: s.cfg.LearningRate,
		Seed:         s.cfg.Seed,
		InputDim:     InputDim,
		Trained:      s.trained,
		Layers:       layers,
	}
}

// Restore rebuilds a scorer from a snapshot, validating the
// configuration and the layer geometry. A snapshot taken against a
// different feature width is rejected rather than silently misread.
func Restore(snap Snapshot) (*Scorer, error) {
	cfg := Config{
		HiddenDim:    snap.HiddenDim,
		NumLayers:    snap.NumLayers,
		LearningRate: snap.LearningRate,
		Seed:         snap.Seed,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	if snap.InputDim != InputDim {
		return nil, fmt.Errorf("restore: snapshot input dim %d does not match current %d", snap.InputDim, InputDim)
	}
	if len(snap.Layers) != snap.NumLayers+1 {
		return nil, fmt.Errorf("restore: expected %d layers, snapshot has %d", snap.NumLayers+1, len(snap.Layers))
	}

	layers := make([]denseLayer, len(snap.Layers))
	expectedIn := InputDim
	for l, layerSnap := range snap.Layers {
		expectedOut := snap.HiddenDim
		if l == len(snap.Layers)-1 {
			expectedOut = 1
		}
		if len(layerSnap.Weights) != expectedOut || len(layerSnap.Biases) != expectedOut {
			return nil, fmt.Errorf("restore: layer %d has %d outputs, expected %d", l, len(layerSnap.Weights), expectedOut)
		}

		weights := make([][]float64, expectedOut)
		for o, row := range layerSnap.Weights {
			if len(row) != expectedIn {
				return nil, fmt.Errorf("restore: layer %d output %d has %d inputs, expected %d", l, o, len(row), expectedIn)
			}
			weights[o] = append([]float64(nil), row...)
		}
		layers[l] = denseLayer{
			weights: weights,
			biases:  append([]float64(nil), layerSnap.Biases...),
		}
		expectedIn = expectedOut
	}

	return &Scorer{
		cfg:     cfg,
		layers:  layers,
		trained: snap.Trained,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}
