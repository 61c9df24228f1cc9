// Package synergy orchestrates the device synergy scoring pipeline:
// device graph construction, pairwise model training with cold-start
// synthetic bootstrapping, versioned model persistence with rollback,
// calibrated prediction and the pattern quality pipeline that turns
// validated behavioral patterns into new training labels.
package synergy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/calibration"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/model"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/patterns"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/spatial"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/store"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/training"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/version"
	"github.com/wtthornton/HomeIQ-sub015/pkg/config"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

const (
	// graphTTL bounds how stale the prediction path's cached device graph
	// may get before it is rebuilt from the entity store.
	graphTTL = time.Minute

	// entityPageSize is the page size used when draining the entity store.
	entityPageSize = 500

	// suggestionPatternType is the calibration bucket for pair scores.
	suggestionPatternType = "synergy_suggestion"

	// promoteQualityMin and promoteConfidenceMin gate pattern-to-synergy
	// promotion: the batch must cross-validate cleanly and the individual
	// co-occurrence pattern must stay convincing after calibration.
	promoteQualityMin    = 0.5
	promoteConfidenceMin = 0.6

	// activeModelName is the serving artifact rollback copies into place
	// under the configured model directory.
	activeModelName = "active.model.json"
)

// TrainOptions adjusts one training run.
type TrainOptions struct {
	// Epochs overrides the configured epoch budget when positive.
	Epochs int

	// Force trains even below the configured minimum pair count, as long
	// as at least one usable pair exists.
	Force bool
}

// TrainingReport is the structured result of a training run. Status is
// "complete" or "skipped"; skipped runs carry a Reason and are not errors.
type TrainingReport struct {
	Status          string  `json:"status"`
	Reason          string  `json:"reason,omitempty"`
	FinalTrainLoss  float64 `json:"final_train_loss"`
	FinalValLoss    float64 `json:"final_val_loss"`
	EpochsTrained   int     `json:"epochs_trained"`
	Nodes           int     `json:"nodes"`
	Edges           int     `json:"edges"`
	TrainingPairs   int     `json:"training_pairs"`
	ValidationPairs int     `json:"validation_pairs"`
	Version         string  `json:"version,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
}

// ScoredSynergy is one fully processed pair prediction: model score,
// calibrated confidence and the spatial annotation.
type ScoredSynergy struct {
	DeviceA       string   `json:"device_a"`
	DeviceB       string   `json:"device_b"`
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	RawConfidence float64  `json:"raw_confidence"`
	Explanation   string   `json:"explanation"`
	Fallback      bool     `json:"fallback,omitempty"`
	ModelVersion  string   `json:"model_version,omitempty"`
	SameArea      bool     `json:"same_area"`
	Areas         []string `json:"areas,omitempty"`
	SpatialNote   string   `json:"spatial_note,omitempty"`
}

// Suggestion is one leaderboard entry read back from the score cache.
type Suggestion struct {
	DeviceA string  `json:"device_a"`
	DeviceB string  `json:"device_b"`
	Score   float64 `json:"score"`
}

// PatternReport summarizes one pass of the pattern quality pipeline.
type PatternReport struct {
	Input        int                 `json:"input"`
	Deduplicated int                 `json:"deduplicated"`
	Validation   *patterns.Report    `json:"validation"`
	Calibrated   []*ontology.Pattern `json:"calibrated"`
	Promoted     int                 `json:"promoted"`
}

// Engine orchestrates the synergy pipeline. It owns no transport: the
// agent drives it over MQTT and the service layer may call it directly.
type Engine struct {
	entities   store.EntityStore
	synergies  store.SynergyStore
	embeddings store.DeviceEmbeddingStore
	versions   *version.Store

	builder    *graph.Builder
	pairGen    *training.PairGenerator
	negatives  training.NegativeSampler
	synthetic  *training.SyntheticGenerator
	dedup      *patterns.Deduplicator
	crossval   *patterns.CrossValidator
	calibrator *calibration.Calibrator
	spatial    *spatial.Service

	handle *ModelHandle
	scores *scoreCache
	graphs *snapshotCache

	cfg    *config.Config
	logger *slog.Logger

	training atomic.Bool
}

// NewEngine wires the pipeline from its collaborators. The cache client
// may be nil; prediction then skips the score cache and suggestion
// leaderboards are unavailable. The acceptance source may be nil; the
// calibrator then always applies its conservative default.
func NewEngine(
	entities store.EntityStore,
	synergies store.SynergyStore,
	embeddings store.DeviceEmbeddingStore,
	versions *version.Store,
	acceptance calibration.AcceptanceSource,
	cache redis.Client,
	cfg *config.Config,
	logger *slog.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scorer, err := model.NewScorer(modelConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to construct scorer: %w", err)
	}

	return &Engine{
		entities:   entities,
		synergies:  synergies,
		embeddings: embeddings,
		versions:   versions,
		builder:    graph.NewBuilder(logger),
		pairGen:    training.NewPairGenerator(logger),
		negatives:  training.NewHeuristicNegativeSampler(cfg.TrainingSeed, logger),
		synthetic:  training.NewSyntheticGenerator(cfg.Latitude, cfg.Longitude, logger),
		dedup:      patterns.NewDeduplicator(logger),
		crossval:   patterns.NewCrossValidator(logger),
		calibrator: calibration.NewCalibrator(acceptance, cfg.CalibrationMinSamples, logger),
		spatial:    spatial.NewService(nil, logger),
		handle:     NewModelHandle(scorer),
		scores: &scoreCache{
			client: cache,
			ttl:    time.Duration(cfg.ScoreCacheTTLSec) * time.Second,
			logger: logger,
		},
		graphs: newSnapshotCache(graphTTL),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func modelConfig(cfg *config.Config) model.Config {
	return model.Config{
		HiddenDim:    cfg.HiddenDim,
		NumLayers:    cfg.NumLayers,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.TrainingSeed,
	}
}

// LoadCurrent restores the most recently saved model version into the
// handle. Called at startup; having no saved version is not an error, the
// engine simply starts with the untrained fallback.
func (e *Engine) LoadCurrent() error {
	info, err := e.versions.Current()
	if err != nil {
		if errors.Is(err, version.ErrNotFound) {
			e.logger.Info("No saved model version, starting untrained")
			return nil
		}
		return fmt.Errorf("failed to read current version: %w", err)
	}

	snap, err := e.versions.Load(info.ID)
	if err != nil {
		return fmt.Errorf("failed to load version %s: %w", info.ID, err)
	}
	scorer, err := model.Restore(snap)
	if err != nil {
		return fmt.Errorf("failed to restore version %s: %w", info.ID, err)
	}

	e.handle.Swap(scorer, info.ID)
	e.logger.Info("Restored model version", "version", info.ID, "created_at", info.CreatedAt)
	return nil
}

// Train runs one full cycle: fetch entities and synergies, bootstrap
// synthetic labels on cold start, generate training pairs, fit a fresh
// scorer, persist the version and swap it into the handle. Too little
// data yields Status "skipped", never an error. A concurrent call is
// rejected with ErrTrainingInProgress.
func (e *Engine) Train(ctx context.Context, opts TrainOptions) (TrainingReport, error) {
	if !e.training.CompareAndSwap(false, true) {
		return TrainingReport{}, ErrTrainingInProgress
	}
	defer e.training.Store(false)

	start := time.Now()

	entities, err := e.listEntities(ctx)
	if err != nil {
		return TrainingReport{}, err
	}
	if len(entities) == 0 {
		return e.skipped(start, "no entities available"), nil
	}

	synergies, err := e.synergies.List(ctx)
	if err != nil {
		return TrainingReport{}, fmt.Errorf("failed to list synergies: %w", err)
	}
	coldStart := len(synergies) == 0
	if coldStart {
		synergies = e.synthetic.Generate(entities, time.Now())
		e.logger.Info("Synergy store empty, bootstrapping from synthetic labels",
			"synthetic_synergies", len(synergies))
	}

	g := e.builder.Build(entities, synergies)

	positives := e.pairGen.Positives(synergies)
	numNegative := int(float64(len(positives)) * e.cfg.NegativeRatio)
	pairs := append(positives, e.negatives.Negatives(entities, synergies, numNegative)...)

	// Pairs whose devices never made it into the graph (synergies over
	// unknown entities) cannot be featurized; drop them up front so the
	// minimum-pair check counts what the scorer will actually see.
	usable := make([]ontology.TrainingPair, 0, len(pairs))
	for _, pair := range pairs {
		if g.Contains(pair.DeviceA) && g.Contains(pair.DeviceB) {
			usable = append(usable, pair)
		}
	}
	if dropped := len(pairs) - len(usable); dropped > 0 {
		e.logger.Debug("Dropped training pairs missing from graph", "dropped", dropped)
	}

	minPairs := e.cfg.MinTrainingPairs
	if opts.Force {
		minPairs = 1
	}
	if len(usable) < minPairs {
		return e.skipped(start, fmt.Sprintf("insufficient training pairs: %d < %d", len(usable), minPairs)), nil
	}

	trainPairs, valPairs := training.Split(usable, e.cfg.ValidationSplit, e.cfg.TrainingSeed)

	scorer, err := model.NewScorer(modelConfig(e.cfg))
	if err != nil {
		return TrainingReport{}, fmt.Errorf("failed to construct scorer: %w", err)
	}

	epochs := opts.Epochs
	if epochs <= 0 {
		epochs = e.cfg.Epochs
	}
	res, err := scorer.Fit(ctx, g, trainPairs, valPairs, model.FitOptions{
		Epochs:   epochs,
		Patience: e.cfg.Patience,
	})
	if err != nil {
		return TrainingReport{}, fmt.Errorf("failed to train scorer: %w", err)
	}

	versionID, err := e.versions.Save(scorer.Snapshot(), "", map[string]any{
		"final_train_loss": res.FinalTrainLoss,
		"final_val_loss":   res.FinalValLoss,
		"epochs_trained":   res.EpochsTrained,
		"nodes":            g.NodeCount(),
		"edges":            g.EdgeCount(),
		"training_pairs":   res.TrainSamples,
		"validation_pairs": res.ValSamples,
		"cold_start":       coldStart,
	})
	if err != nil {
		return TrainingReport{}, fmt.Errorf("failed to save model version: %w", err)
	}

	e.handle.Swap(scorer, versionID)
	e.graphs.put(&graphSnapshot{graph: g, entities: entities, builtAt: time.Now()})
	e.spatial.BuildGraph(entities)
	e.persistEmbeddings(ctx, g, entities)

	report := TrainingReport{
		Status:          "complete",
		FinalTrainLoss:  res.FinalTrainLoss,
		FinalValLoss:    res.FinalValLoss,
		EpochsTrained:   res.EpochsTrained,
		Nodes:           g.NodeCount(),
		Edges:           g.EdgeCount(),
		TrainingPairs:   res.TrainSamples,
		ValidationPairs: res.ValSamples,
		Version:         versionID,
		DurationMS:      time.Since(start).Milliseconds(),
	}

	e.logger.Info("Training completed",
		"version", versionID,
		"cold_start", coldStart,
		"nodes", report.Nodes,
		"edges", report.Edges,
		"training_pairs", report.TrainingPairs,
		"validation_pairs", report.ValidationPairs,
		"epochs_trained", report.EpochsTrained,
		"final_train_loss", report.FinalTrainLoss,
		"final_val_loss", report.FinalValLoss,
		"duration_ms", report.DurationMS)

	return report, nil
}

// skipped builds the structured non-error report for runs with too little
// data to train on.
func (e *Engine) skipped(start time.Time, reason string) TrainingReport {
	e.logger.Info("Training skipped", "reason", reason)
	return TrainingReport{
		Status:     "skipped",
		Reason:     reason,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// LearnIncremental applies new labeled pairs to the loaded model without
// a full retrain and saves the updated state as a new version. The graph
// is reused from the prediction cache, so per-call cost tracks the new
// sample count. Requires a previously trained model.
func (e *Engine) LearnIncremental(ctx context.Context, pairs []ontology.TrainingPair) (string, error) {
	if len(pairs) == 0 {
		return e.handle.Version(), nil
	}
	if !e.training.CompareAndSwap(false, true) {
		return "", ErrTrainingInProgress
	}
	defer e.training.Store(false)

	snap, err := e.snapshot(ctx)
	if err != nil {
		return "", err
	}

	applied, err := e.handle.LearnMany(snap.graph, pairs)
	if err != nil {
		return "", fmt.Errorf("failed to apply incremental update: %w", err)
	}
	if applied == 0 {
		e.logger.Warn("No incremental pairs matched the device graph", "offered", len(pairs))
		return e.handle.Version(), nil
	}

	versionID, err := e.versions.Save(e.handle.Snapshot(), "", map[string]any{
		"incremental":   true,
		"pairs_applied": applied,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save model version: %w", err)
	}
	e.handle.SetVersion(versionID)

	e.logger.Info("Incremental update applied",
		"pairs_offered", len(pairs),
		"pairs_applied", applied,
		"version", versionID)
	return versionID, nil
}

// Predict scores one device pair end to end: model score, calibrated
// confidence, spatial annotation. Results are cached in redis keyed by
// model version and canonical pair key.
func (e *Engine) Predict(ctx context.Context, deviceA, deviceB string) (ScoredSynergy, error) {
	if err := model.ValidatePair(deviceA, deviceB); err != nil {
		return ScoredSynergy{}, err
	}

	pairKey := ontology.PairKey(deviceA, deviceB)
	modelVersion := e.handle.Version()
	if scored, ok := e.scores.get(ctx, modelVersion, pairKey); ok {
		e.logger.Debug("Score cache hit", "pair", pairKey, "version", modelVersion)
		return scored, nil
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return ScoredSynergy{}, err
	}

	pred, err := e.handle.Predict(snap.graph, deviceA, deviceB)
	if err != nil {
		return ScoredSynergy{}, err
	}

	validation := e.spatial.ValidateCrossAreaSynergy(ontology.Synergy{
		ID:        pairKey,
		DeviceIDs: []string{deviceA, deviceB},
	}, snap.entities)

	scored := ScoredSynergy{
		DeviceA:       deviceA,
		DeviceB:       deviceB,
		Score:         pred.Score,
		Confidence:    e.calibrator.Calibrate(ctx, suggestionPatternType, pred.Confidence),
		RawConfidence: pred.Confidence,
		Explanation:   pred.Explanation,
		Fallback:      pred.Fallback,
		ModelVersion:  modelVersion,
		SameArea:      validation.SameArea,
		Areas:         validation.Areas,
		SpatialNote:   validation.Reason,
	}

	e.scores.put(ctx, modelVersion, pairKey, scored)
	return scored, nil
}

// Rollback restores a stored version: the artifact is copied to the
// active serving path and the handle reloads it. Unknown versions return
// version.ErrNotFound.
func (e *Engine) Rollback(ctx context.Context, versionID string) error {
	targetPath := filepath.Join(e.cfg.ModelDir, activeModelName)
	if err := e.versions.Rollback(versionID, targetPath); err != nil {
		return err
	}

	snap, err := e.versions.Load(versionID)
	if err != nil {
		return err
	}
	scorer, err := model.Restore(snap)
	if err != nil {
		return fmt.Errorf("failed to restore version %s: %w", versionID, err)
	}
	e.handle.Swap(scorer, versionID)

	e.logger.Info("Rolled back model", "version", versionID, "target_path", targetPath)
	return nil
}

// ProcessPatterns runs the pattern quality pipeline: deduplicate,
// cross-validate, calibrate. When the batch cross-validates cleanly,
// convincing co-occurrence patterns are promoted to stored synergies so
// the next training run learns from them.
func (e *Engine) ProcessPatterns(ctx context.Context, input []*ontology.Pattern) PatternReport {
	deduped := e.dedup.Deduplicate(input)
	validation := e.crossval.Validate(deduped)
	calibrated := e.calibrator.CalibrateBatch(ctx, deduped)

	report := PatternReport{
		Input:        len(input),
		Deduplicated: len(deduped),
		Validation:   validation,
		Calibrated:   calibrated,
	}

	if validation.QualityScore < promoteQualityMin {
		e.logger.Info("Pattern batch below promotion quality",
			"quality_score", validation.QualityScore,
			"required", promoteQualityMin)
		return report
	}

	for _, p := range calibrated {
		if p.Type != ontology.PatternCoOccurrence || p.Confidence < promoteConfidenceMin {
			continue
		}
		deviceA, deviceB, ok := p.DevicePair()
		if !ok {
			continue
		}

		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		syn := ontology.Synergy{
			ID:                  "pattern-" + id.String(),
			DeviceIDs:           []string{deviceA, deviceB},
			SynergyType:         "pattern_correlation",
			ImpactScore:         p.Confidence * validation.QualityScore,
			Confidence:          p.Confidence,
			ValidatedByPatterns: true,
			DetectedAt:          time.Now().UTC(),
		}
		if err := e.synergies.Save(ctx, syn); err != nil {
			e.logger.Warn("Failed to promote pattern to synergy",
				"pattern_id", id,
				"error", err)
			continue
		}
		report.Promoted++
	}

	if report.Promoted > 0 {
		// New synergies change the graph and the training corpus.
		e.graphs.invalidate()
	}

	e.logger.Info("Processed pattern batch",
		"input", report.Input,
		"deduplicated", report.Deduplicated,
		"quality_score", validation.QualityScore,
		"promoted", report.Promoted)

	return report
}

// RefreshSuggestions rescores the graph's edge pairs and rebuilds the
// per-area suggestion leaderboards, capped by MaxCandidatePairs.
func (e *Engine) RefreshSuggestions(ctx context.Context) (int, error) {
	if e.scores.client == nil {
		e.logger.Debug("Suggestion refresh skipped, no cache client")
		return 0, nil
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return 0, err
	}

	byID := make(map[string]ontology.Entity, len(snap.entities))
	for _, ent := range snap.entities {
		byID[ent.EntityID] = ent
	}

	ttl := 2 * time.Duration(e.cfg.TrainingIntervalSec) * time.Second
	limit := e.cfg.MaxCandidatePairs
	refreshed := 0
	for _, edge := range snap.graph.Edges {
		if limit > 0 && refreshed >= limit {
			break
		}
		deviceA := snap.graph.Nodes[edge[0]]
		deviceB := snap.graph.Nodes[edge[1]]

		scored, err := e.Predict(ctx, deviceA, deviceB)
		if err != nil {
			e.logger.Warn("Failed to score candidate pair",
				"device_a", deviceA,
				"device_b", deviceB,
				"error", err)
			continue
		}

		member := ontology.PairKey(deviceA, deviceB)
		for _, area := range suggestionAreas(byID[deviceA], byID[deviceB]) {
			key := redis.SuggestionKey(area)
			if err := e.scores.client.ZAdd(ctx, key, scored.Score, member); err != nil {
				e.logger.Warn("Failed to update suggestion leaderboard", "key", key, "error", err)
				continue
			}
			if ttl > 0 {
				if err := e.scores.client.Expire(ctx, key, ttl); err != nil {
					e.logger.Warn("Failed to set leaderboard TTL", "key", key, "error", err)
				}
			}
		}
		refreshed++
	}

	e.logger.Info("Refreshed suggestion leaderboards", "pairs", refreshed)
	return refreshed, nil
}

// TopSuggestions reads an area's leaderboard, highest score first.
func (e *Engine) TopSuggestions(ctx context.Context, area string, limit int) ([]Suggestion, error) {
	if e.scores.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	members, err := e.scores.client.ZRevRangeByScoreWithScores(ctx, redis.SuggestionKey(area), 1, 0, 0, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read suggestions for area %s: %w", area, err)
	}

	suggestions := make([]Suggestion, 0, len(members))
	for _, m := range members {
		parts := strings.SplitN(m.Member, "|", 2)
		if len(parts) != 2 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			DeviceA: parts[0],
			DeviceB: parts[1],
			Score:   m.Score,
		})
	}
	return suggestions, nil
}

// Areas lists the distinct areas in the last-built spatial graph.
func (e *Engine) Areas() []string {
	return e.spatial.Areas()
}

// snapshot returns the cached device graph, rebuilding it from the stores
// when the cache is stale. Rebuilds also refresh the spatial adjacency
// graph so annotation and scoring see the same entity set.
func (e *Engine) snapshot(ctx context.Context) (*graphSnapshot, error) {
	if snap := e.graphs.get(); snap != nil {
		return snap, nil
	}

	entities, err := e.listEntities(ctx)
	if err != nil {
		return nil, err
	}
	synergies, err := e.synergies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list synergies: %w", err)
	}

	snap := &graphSnapshot{
		graph:    e.builder.Build(entities, synergies),
		entities: entities,
		builtAt:  time.Now(),
	}
	e.spatial.BuildGraph(entities)
	e.graphs.put(snap)
	return snap, nil
}

// listEntities drains the entity store page by page.
func (e *Engine) listEntities(ctx context.Context) ([]ontology.Entity, error) {
	var all []ontology.Entity
	for offset := 0; ; offset += entityPageSize {
		page, err := e.entities.List(ctx, entityPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list entities: %w", err)
		}
		all = append(all, page...)
		if len(page) < entityPageSize {
			return all, nil
		}
	}
}

// persistEmbeddings upserts every node's feature vector for similarity
// search. Failures degrade similarity mining, not training, so they are
// logged and skipped.
func (e *Engine) persistEmbeddings(ctx context.Context, g *graph.DeviceGraph, entities []ontology.Entity) {
	if e.embeddings == nil {
		return
	}

	byID := make(map[string]ontology.Entity, len(entities))
	for _, ent := range entities {
		byID[ent.EntityID] = ent
	}

	stored := 0
	for _, node := range g.Nodes {
		vec, ok := g.NodeVector(node)
		if !ok {
			continue
		}
		ent := byID[node]
		if err := e.embeddings.Upsert(ctx, node, ent.AreaID, ent.EffectiveDomain(), vec); err != nil {
			e.logger.Warn("Failed to store device embedding", "entity_id", node, "error", err)
			continue
		}
		stored++
	}
	e.logger.Debug("Stored device embeddings", "count", stored)
}

// suggestionAreas returns the distinct leaderboard areas a pair belongs
// to. A pair with no placed device lands on the unassigned leaderboard.
func suggestionAreas(a, b ontology.Entity) []string {
	var areas []string
	if a.AreaID != "" {
		areas = append(areas, a.AreaID)
	}
	if b.AreaID != "" && b.AreaID != a.AreaID {
		areas = append(areas, b.AreaID)
	}
	if len(areas) == 0 {
		return []string{""}
	}
	return areas
}
