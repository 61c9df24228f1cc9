package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// ErrUntrained is returned by operations that require a fitted model,
// such as incremental updates. Predict never returns it; an untrained
// model falls back to the graph heuristic instead.
var ErrUntrained = errors.New("model: not trained")

// InputDim is the width of the pairwise input vector: the two node
// vectors, their element-wise product and their absolute difference.
const InputDim = 4 * graph.FeatureDim

const (
	defaultEpochs   = 50
	defaultPatience = 5

	// minDelta is the smallest loss improvement that resets the
	// early-stopping counter.
	minDelta = 1e-6

	// incrementalPasses bounds LearnMany's cost to a small multiple of
	// the new-sample count.
	incrementalPasses = 3
)

// Config holds the scorer hyperparameters.
type Config struct {
	HiddenDim    int
	NumLayers    int
	LearningRate float64
	Seed         int64
}

// Validate fails fast on hyperparameters the network cannot be built
// from.
func (c Config) Validate() error {
	if c.HiddenDim < 1 {
		return fmt.Errorf("model config: hidden_dim must be positive, got %d", c.HiddenDim)
	}
	if c.NumLayers < 1 {
		return fmt.Errorf("model config: num_layers must be at least 1, got %d", c.NumLayers)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("model config: learning_rate must be positive, got %g", c.LearningRate)
	}
	return nil
}

// denseLayer is one fully connected layer, weights indexed [out][in].
type denseLayer struct {
	weights [][]float64
	biases  []float64
}

// Scorer is a small feed-forward network over pairwise device features:
// NumLayers tanh hidden layers of HiddenDim units and a sigmoid output,
// trained with per-sample SGD on squared loss.
//
// Concurrency contract: single writer, multiple readers, never
// simultaneously. Fit and LearnMany mutate weights; Predict only reads.
// Callers needing concurrent access wrap the scorer in a handle with
// its own lock.
type Scorer struct {
	cfg     Config
	layers  []denseLayer
	trained bool
	rng     *rand.Rand
}

// NewScorer builds an untrained scorer, validating the configuration
// before any weights are allocated. Weight initialization is
// deterministic for a given seed.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	s := &Scorer{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	s.layers = s.initLayers()
	return s, nil
}

// initLayers allocates input→hidden, hidden→hidden and hidden→output
// layers with scaled random weights.
func (s *Scorer) initLayers() []denseLayer {
	dims := make([]int, 0, s.cfg.NumLayers+2)
	dims = append(dims, InputDim)
	for i := 0; i < s.cfg.NumLayers; i++ {
		dims = append(dims, s.cfg.HiddenDim)
	}
	dims = append(dims, 1)

	layers := make([]denseLayer, len(dims)-1)
	for l := range layers {
		in, out := dims[l], dims[l+1]
		scale := math.Sqrt(1.0 / float64(in))

		weights := make([][]float64, out)
		for o := range weights {
			row := make([]float64, in)
			for i := range row {
				row[i] = s.rng.NormFloat64() * scale
			}
			weights[o] = row
		}
		layers[l] = denseLayer{weights: weights, biases: make([]float64, out)}
	}
	return layers
}

// Trained reports whether the scorer has been fitted or restored from a
// fitted snapshot.
func (s *Scorer) Trained() bool {
	return s.trained
}

// FitOptions bounds one training run. Zero values fall back to the
// package defaults.
type FitOptions struct {
	Epochs   int
	Patience int
}

// FitResult records what one training run did.
type FitResult struct {
	FinalTrainLoss float64 `json:"final_train_loss"`
	FinalValLoss   float64 `json:"final_val_loss"`
	EpochsTrained  int     `json:"epochs_trained"`
	TrainSamples   int     `json:"train_samples"`
	ValSamples     int     `json:"val_samples"`
}

// sample is one featurized training pair.
type sample struct {
	input []float64
	label float64
}

// Fit trains the network on the given pairs, using val (when non-empty)
// for early stopping: training stops after Patience epochs without a
// loss improvement or when the epoch budget runs out. Pairs whose
// devices are missing from the graph are dropped. Cancellation is
// observed between epochs only.
func (s *Scorer) Fit(ctx context.Context, g *graph.DeviceGraph, train, val []ontology.TrainingPair, opts FitOptions) (FitResult, error) {
	if opts.Epochs <= 0 {
		opts.Epochs = defaultEpochs
	}
	if opts.Patience <= 0 {
		opts.Patience = defaultPatience
	}

	trainSamples := featurize(g, train)
	valSamples := featurize(g, val)
	if len(trainSamples) == 0 {
		return FitResult{}, fmt.Errorf("fit: no trainable pairs (all %d pairs missing from graph)", len(train))
	}

	result := FitResult{TrainSamples: len(trainSamples), ValSamples: len(valSamples)}

	bestLoss := math.Inf(1)
	stale := 0
	order := make([]int, len(trainSamples))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("fit cancelled after %d epochs: %w", result.EpochsTrained, err)
		}

		s.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		var epochLoss float64
		for _, idx := range order {
			epochLoss += s.step(trainSamples[idx])
		}
		result.FinalTrainLoss = epochLoss / float64(len(trainSamples))
		result.EpochsTrained = epoch + 1

		monitored := result.FinalTrainLoss
		if len(valSamples) > 0 {
			result.FinalValLoss = s.meanLoss(valSamples)
			monitored = result.FinalValLoss
		}

		if bestLoss-monitored > minDelta {
			bestLoss = monitored
			stale = 0
		} else {
			stale++
			if stale >= opts.Patience {
				break
			}
		}
	}

	s.trained = true
	return result, nil
}

// LearnMany applies incremental SGD updates for new labeled pairs
// without reinitializing weights. Cost is proportional to the number of
// new samples, not the training corpus. Returns how many pairs were
// usable. The scorer must already be trained.
func (s *Scorer) LearnMany(g *graph.DeviceGraph, pairs []ontology.TrainingPair) (int, error) {
	if !s.trained {
		return 0, ErrUntrained
	}

	samples := featurize(g, pairs)
	if len(samples) == 0 {
		return 0, nil
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	for pass := 0; pass < incrementalPasses; pass++ {
		s.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, idx := range order {
			s.step(samples[idx])
		}
	}
	return len(samples), nil
}

// featurize converts pairs to network inputs, dropping pairs whose
// devices carry no graph features.
func featurize(g *graph.DeviceGraph, pairs []ontology.TrainingPair) []sample {
	samples := make([]sample, 0, len(pairs))
	for _, pair := range pairs {
		fa, okA := g.Features(pair.DeviceA)
		fb, okB := g.Features(pair.DeviceB)
		if !okA || !okB {
			continue
		}
		samples = append(samples, sample{
			input: pairFeatures(pair.DeviceA, pair.DeviceB, fa, fb),
			label: pair.Label,
		})
	}
	return samples
}

// step runs forward + backprop + SGD update for one sample and returns
// its pre-update squared loss.
func (s *Scorer) step(sm sample) float64 {
	activations, out := s.forward(sm.input)

	diff := out - sm.label
	loss := diff * diff

	// Output delta for squared loss through the sigmoid.
	delta := []float64{2 * diff * out * (1 - out)}

	for l := len(s.layers) - 1; l >= 0; l-- {
		layer := &s.layers[l]
		prev := activations[l]

		var prevDelta []float64
		if l > 0 {
			prevDelta = make([]float64, len(prev))
			for o, row := range layer.weights {
				for i, w := range row {
					prevDelta[i] += w * delta[o]
				}
			}
			// tanh derivative of the previous layer's activation.
			for i := range prevDelta {
				prevDelta[i] *= 1 - prev[i]*prev[i]
			}
		}

		lr := s.cfg.LearningRate
		for o, row := range layer.weights {
			for i := range row {
				row[i] -= lr * delta[o] * prev[i]
			}
			layer.biases[o] -= lr * delta[o]
		}

		delta = prevDelta
	}

	return loss
}

// forward runs the network, returning every layer's activation (index 0
// is the input) and the final sigmoid output.
func (s *Scorer) forward(input []float64) ([][]float64, float64) {
	activations := make([][]float64, 0, len(s.layers)+1)
	activations = append(activations, input)

	current := input
	for l, layer := range s.layers {
		next := make([]float64, len(layer.weights))
		for o, row := range layer.weights {
			z := layer.biases[o]
			for i, w := range row {
				z += w * current[i]
			}
			if l == len(s.layers)-1 {
				next[o] = sigmoid(z)
			} else {
				next[o] = math.Tanh(z)
			}
		}
		activations = append(activations, next)
		current = next
	}

	return activations, current[0]
}

// meanLoss computes mean squared loss without updating weights.
func (s *Scorer) meanLoss(samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, sm := range samples {
		_, out := s.forward(sm.input)
		diff := out - sm.label
		total += diff * diff
	}
	return total / float64(len(samples))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
