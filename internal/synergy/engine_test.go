package synergy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/model"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/store"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/version"
	"github.com/wtthornton/HomeIQ-sub015/pkg/config"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

// testConfig returns a config sized for fast, deterministic training in
// tests: a small network, a generous epoch budget and a fixed seed.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.ModelDir = t.TempDir()
	cfg.MinTrainingPairs = 2
	cfg.NegativeRatio = 2.0
	cfg.HiddenDim = 8
	cfg.NumLayers = 1
	cfg.Epochs = 300
	cfg.Patience = 50
	cfg.LearningRate = 0.1
	cfg.ValidationSplit = 0.2
	cfg.TrainingSeed = 42
	cfg.TrainingIntervalSec = 0
	return cfg
}

// testEntities is the three-device home used across the engine tests: a
// motion/light pair in the bedroom and an unrelated kitchen light.
func testEntities() []ontology.Entity {
	return []ontology.Entity{
		{EntityID: "light.bedroom", Domain: "light", AreaID: "bedroom"},
		{EntityID: "sensor.motion_bedroom", Domain: "binary_sensor", AreaID: "bedroom"},
		{EntityID: "light.kitchen", Domain: "light", AreaID: "kitchen"},
	}
}

func testSynergies() []ontology.Synergy {
	return []ontology.Synergy{{
		ID:          "syn-bedroom",
		DeviceIDs:   []string{"sensor.motion_bedroom", "light.bedroom"},
		SynergyType: "automation_chain",
		Confidence:  0.9,
		ImpactScore: 0.8,
	}}
}

func newTestEngine(t *testing.T, cfg *config.Config, entities []ontology.Entity, synergies []ontology.Synergy, cache redis.Client) (*Engine, *store.MemorySynergyStore) {
	t.Helper()

	versions, err := version.NewStore(cfg.ModelDir, nil)
	require.NoError(t, err)

	synStore := store.NewMemorySynergyStore(synergies)
	eng, err := NewEngine(
		store.NewMemoryEntityStore(entities),
		synStore,
		store.NewMemoryEmbeddingStore(),
		versions,
		nil,
		cache,
		cfg,
		nil,
	)
	require.NoError(t, err)
	return eng, synStore
}

func TestTrainSkipsWhenNoEntities(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), nil, nil, nil)

	report, err := eng.Train(context.Background(), TrainOptions{})
	require.NoError(t, err, "missing data is a skip, not an error")
	assert.Equal(t, "skipped", report.Status)
	assert.Equal(t, "no entities available", report.Reason)
	assert.False(t, eng.handle.Trained())
}

func TestTrainSkipsBelowMinimumPairs(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinTrainingPairs = 50
	eng, _ := newTestEngine(t, cfg, testEntities(), testSynergies(), nil)

	report, err := eng.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	assert.Equal(t, "skipped", report.Status)
	assert.Contains(t, report.Reason, "insufficient training pairs")
	assert.False(t, eng.handle.Trained())
}

func TestTrainForceOverridesMinimum(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinTrainingPairs = 50
	eng, _ := newTestEngine(t, cfg, testEntities(), testSynergies(), nil)

	report, err := eng.Train(context.Background(), TrainOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "complete", report.Status)
	assert.NotEmpty(t, report.Version)
	assert.True(t, eng.handle.Trained())
}

func TestTrainColdStartUsesSyntheticLabels(t *testing.T) {
	eng, synStore := newTestEngine(t, testConfig(t), testEntities(), nil, nil)

	report, err := eng.Train(context.Background(), TrainOptions{})
	require.NoError(t, err)
	assert.Equal(t, "complete", report.Status)
	assert.Equal(t, 3, report.Nodes)
	assert.Equal(t, 1, report.Edges, "one synthetic motion/light pairing in the bedroom")
	assert.NotEmpty(t, report.Version)

	// Synthetic labels feed the run but are never persisted as synergies.
	stored, err := synStore.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)

	versions := eng.versions.List()
	require.Len(t, versions, 1)
	assert.Equal(t, true, versions[0].Metadata["cold_start"])
}

func TestTrainRejectsConcurrentRuns(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), nil)
	ctx := context.Background()

	eng.training.Store(true)
	_, err := eng.Train(ctx, TrainOptions{})
	assert.ErrorIs(t, err, ErrTrainingInProgress)

	_, err = eng.LearnIncremental(ctx, []ontology.TrainingPair{
		{DeviceA: "light.bedroom", DeviceB: "light.kitchen", Label: 1},
	})
	assert.ErrorIs(t, err, ErrTrainingInProgress)
	eng.training.Store(false)

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	assert.Equal(t, "complete", report.Status)
}

func TestPredictRejectsMalformedPairs(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), nil)
	ctx := context.Background()

	_, err := eng.Predict(ctx, "", "light.kitchen")
	assert.ErrorIs(t, err, model.ErrMalformedPair)

	_, err = eng.Predict(ctx, "light.kitchen", "light.kitchen")
	assert.ErrorIs(t, err, model.ErrMalformedPair)
}

func TestPredictUntrainedFallsBack(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), nil)

	scored, err := eng.Predict(context.Background(), "light.bedroom", "sensor.motion_bedroom")
	require.NoError(t, err)

	assert.True(t, scored.Fallback)
	assert.InDelta(t, 0.3, scored.RawConfidence, 1e-9)
	// No feedback source wired, so the calibrator applies its
	// conservative default: 0.3 * 0.95.
	assert.InDelta(t, 0.285, scored.Confidence, 1e-9)
	assert.Empty(t, scored.ModelVersion)
	assert.True(t, scored.SameArea)
	assert.Greater(t, scored.Score, 0.0)
}

func TestPredictUsesScoreCache(t *testing.T) {
	fr := newFakeRedis()
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), fr)
	ctx := context.Background()

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	require.Equal(t, "complete", report.Status)

	first, err := eng.Predict(ctx, "light.bedroom", "sensor.motion_bedroom")
	require.NoError(t, err)
	assert.Equal(t, report.Version, first.ModelVersion)
	assert.Equal(t, 1, fr.valueCount())

	// Overwrite the cached entry; the second prediction must come from
	// the cache, not the model.
	key := redis.ScoreCacheKey(report.Version, ontology.PairKey("light.bedroom", "sensor.motion_bedroom"))
	poisoned, err := json.Marshal(ScoredSynergy{
		DeviceA: "light.bedroom",
		DeviceB: "sensor.motion_bedroom",
		Score:   0.123,
	})
	require.NoError(t, err)
	fr.setValue(key, string(poisoned))

	second, err := eng.Predict(ctx, "sensor.motion_bedroom", "light.bedroom")
	require.NoError(t, err)
	assert.InDelta(t, 0.123, second.Score, 1e-9, "pair key is order-independent, so either order hits the cache")
}

func TestPredictSkipsCacheWhenUntrained(t *testing.T) {
	fr := newFakeRedis()
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), fr)

	scored, err := eng.Predict(context.Background(), "light.bedroom", "sensor.motion_bedroom")
	require.NoError(t, err)
	assert.True(t, scored.Fallback)
	assert.Equal(t, 0, fr.valueCount(), "unversioned predictions are never cached")
}

func TestLearnIncrementalRequiresTrainedModel(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), nil)

	_, err := eng.LearnIncremental(context.Background(), []ontology.TrainingPair{
		{DeviceA: "light.bedroom", DeviceB: "light.kitchen", Label: 1},
	})
	assert.ErrorIs(t, err, model.ErrUntrained)
}

func TestLearnIncrementalSavesNewVersion(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), nil)
	ctx := context.Background()

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	require.Equal(t, "complete", report.Status)

	before, err := eng.Predict(ctx, "light.bedroom", "light.kitchen")
	require.NoError(t, err)

	// Repeated positive feedback on a pair trained as a negative.
	pairs := make([]ontology.TrainingPair, 25)
	for i := range pairs {
		pairs[i] = ontology.TrainingPair{DeviceA: "light.bedroom", DeviceB: "light.kitchen", Label: 1}
	}
	updated, err := eng.LearnIncremental(ctx, pairs)
	require.NoError(t, err)
	assert.NotEqual(t, report.Version, updated)

	after, err := eng.Predict(ctx, "light.bedroom", "light.kitchen")
	require.NoError(t, err)
	assert.Greater(t, after.Score, before.Score+0.1, "incremental updates shift the pair toward its new label")
	assert.Equal(t, updated, after.ModelVersion)

	versions := eng.versions.List()
	require.Len(t, versions, 2)
	assert.Equal(t, updated, versions[0].ID)
	assert.Equal(t, true, versions[0].Metadata["incremental"])

	// An empty batch is a no-op, not a new version.
	same, err := eng.LearnIncremental(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, updated, same)
	assert.Len(t, eng.versions.List(), 2)
}

func TestRollbackRestoresPreviousModel(t *testing.T) {
	cfg := testConfig(t)
	eng, _ := newTestEngine(t, cfg, testEntities(), testSynergies(), nil)
	ctx := context.Background()

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	require.Equal(t, "complete", report.Status)

	original, err := eng.Predict(ctx, "light.bedroom", "light.kitchen")
	require.NoError(t, err)

	pairs := make([]ontology.TrainingPair, 25)
	for i := range pairs {
		pairs[i] = ontology.TrainingPair{DeviceA: "light.bedroom", DeviceB: "light.kitchen", Label: 1}
	}
	_, err = eng.LearnIncremental(ctx, pairs)
	require.NoError(t, err)

	drifted, err := eng.Predict(ctx, "light.bedroom", "light.kitchen")
	require.NoError(t, err)
	require.Greater(t, drifted.Score, original.Score+0.1)

	require.NoError(t, eng.Rollback(ctx, report.Version))
	assert.Equal(t, report.Version, eng.handle.Version())

	restored, err := eng.Predict(ctx, "light.bedroom", "light.kitchen")
	require.NoError(t, err)
	assert.InDelta(t, original.Score, restored.Score, 1e-9)

	_, err = os.Stat(filepath.Join(cfg.ModelDir, "active.model.json"))
	assert.NoError(t, err, "rollback copies the artifact to the active serving path")

	err = eng.Rollback(ctx, "v-does-not-exist")
	assert.ErrorIs(t, err, version.ErrNotFound)
}

func TestProcessPatternsPromotesSynergies(t *testing.T) {
	eng, synStore := newTestEngine(t, testConfig(t), testEntities(), nil, nil)
	ctx := context.Background()

	coID := uuid.New()
	input := []*ontology.Pattern{
		{
			ID:          uuid.New(),
			Type:        ontology.PatternTimeOfDay,
			DeviceID:    "light.bedroom",
			Confidence:  0.8,
			Occurrences: 5,
			Metadata:    map[string]interface{}{"hour": 7, "minute": 0},
		},
		{
			ID:          uuid.New(),
			Type:        ontology.PatternTimeOfDay,
			DeviceID:    "light.bedroom",
			Confidence:  0.8,
			Occurrences: 3,
			Metadata:    map[string]interface{}{"hour": 7, "minute": 20},
		},
		{
			ID:          coID,
			Type:        ontology.PatternCoOccurrence,
			DeviceID:    "light.bedroom",
			DeviceIDs:   []string{"light.bedroom", "sensor.motion_bedroom"},
			Confidence:  0.9,
			Occurrences: 12,
		},
	}

	report := eng.ProcessPatterns(ctx, input)

	assert.Equal(t, 3, report.Input)
	assert.Equal(t, 3, report.Deduplicated, "20 minutes apart is outside the consolidation window")
	assert.Equal(t, 1, report.Validation.Reinforcements)
	assert.Equal(t, 0, report.Validation.Contradictions)
	assert.InDelta(t, 0.6, report.Validation.QualityScore, 1e-9)
	assert.Len(t, report.Calibrated, 3)
	assert.Equal(t, 1, report.Promoted)

	stored, err := synStore.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	syn := stored[0]
	assert.Equal(t, "pattern-"+coID.String(), syn.ID)
	assert.Equal(t, "pattern_correlation", syn.SynergyType)
	assert.ElementsMatch(t, []string{"light.bedroom", "sensor.motion_bedroom"}, syn.DeviceIDs)
	assert.True(t, syn.ValidatedByPatterns)
	assert.InDelta(t, 0.855, syn.Confidence, 1e-9, "calibrated from 0.9 by the conservative default")
	assert.InDelta(t, 0.513, syn.ImpactScore, 1e-9, "calibrated confidence scaled by batch quality")

	// Reprocessing the same batch upserts, it does not duplicate.
	again := eng.ProcessPatterns(ctx, input)
	assert.Equal(t, 1, again.Promoted)
	stored, err = synStore.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestProcessPatternsSkipsLowQualityBatch(t *testing.T) {
	eng, synStore := newTestEngine(t, testConfig(t), testEntities(), nil, nil)
	ctx := context.Background()

	input := []*ontology.Pattern{
		{
			ID:          uuid.New(),
			Type:        ontology.PatternCoOccurrence,
			DeviceID:    "light.bedroom",
			DeviceIDs:   []string{"light.bedroom", "sensor.motion_bedroom"},
			Confidence:  0.95,
			Occurrences: 12,
		},
		{
			ID:          uuid.New(),
			Type:        ontology.PatternTimeOfDay,
			DeviceID:    "light.bedroom",
			Confidence:  0.7,
			Occurrences: 2,
			Metadata:    map[string]interface{}{"hour": 7},
		},
	}

	report := eng.ProcessPatterns(ctx, input)

	assert.Equal(t, 1, report.Validation.Contradictions)
	assert.InDelta(t, 0.3, report.Validation.QualityScore, 1e-9)
	assert.Equal(t, 0, report.Promoted, "contradictory batches promote nothing, however confident the patterns")

	stored, err := synStore.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRefreshSuggestionsBuildsLeaderboards(t *testing.T) {
	fr := newFakeRedis()
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), fr)
	ctx := context.Background()

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	require.Equal(t, "complete", report.Status)

	refreshed, err := eng.RefreshSuggestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed, "the graph has one edge to score")

	assert.Equal(t, []string{"bedroom", "kitchen"}, eng.Areas())

	top, err := eng.TopSuggestions(ctx, "bedroom", 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "light.bedroom", top[0].DeviceA)
	assert.Equal(t, "sensor.motion_bedroom", top[0].DeviceB)
	assert.Greater(t, top[0].Score, 0.5, "the pair was trained with label 0.9")

	// Highest score first when the leaderboard has competition.
	require.NoError(t, fr.ZAdd(ctx, redis.SuggestionKey("bedroom"), 0.1, "light.bedroom|switch.fan_bedroom"))
	top, err = eng.TopSuggestions(ctx, "bedroom", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "sensor.motion_bedroom", top[0].DeviceB)
	assert.InDelta(t, 0.1, top[1].Score, 1e-9)
}

func TestRefreshSuggestionsWithoutCache(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), testSynergies(), nil)

	refreshed, err := eng.RefreshSuggestions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)

	top, err := eng.TopSuggestions(context.Background(), "bedroom", 10)
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestLoadCurrentRestoresModel(t *testing.T) {
	cfg := testConfig(t)
	eng, _ := newTestEngine(t, cfg, testEntities(), testSynergies(), nil)
	ctx := context.Background()

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	require.Equal(t, "complete", report.Status)

	trained, err := eng.Predict(ctx, "light.bedroom", "sensor.motion_bedroom")
	require.NoError(t, err)

	// A second engine over the same model dir restores the saved version.
	restartedEng, _ := newTestEngine(t, cfg, testEntities(), testSynergies(), nil)
	require.NoError(t, restartedEng.LoadCurrent())
	assert.True(t, restartedEng.handle.Trained())
	assert.Equal(t, report.Version, restartedEng.handle.Version())

	restored, err := restartedEng.Predict(ctx, "light.bedroom", "sensor.motion_bedroom")
	require.NoError(t, err)
	assert.InDelta(t, trained.Score, restored.Score, 1e-9)
}

func TestLoadCurrentWithEmptyStore(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t), testEntities(), nil, nil)

	require.NoError(t, eng.LoadCurrent(), "an empty version store is a cold start, not an error")
	assert.False(t, eng.handle.Trained())
	assert.Empty(t, eng.handle.Version())
}

// trainScenario is the YAML shape of testdata/end_to_end.yaml.
type trainScenario struct {
	Name   string `yaml:"name"`
	Config struct {
		MinTrainingPairs int     `yaml:"min_training_pairs"`
		NegativeRatio    float64 `yaml:"negative_ratio"`
		Epochs           int     `yaml:"epochs"`
		Patience         int     `yaml:"patience"`
		LearningRate     float64 `yaml:"learning_rate"`
		HiddenDim        int     `yaml:"hidden_dim"`
		NumLayers        int     `yaml:"num_layers"`
		TrainingSeed     int64   `yaml:"training_seed"`
		ValidationSplit  float64 `yaml:"validation_split"`
	} `yaml:"config"`
	Entities []struct {
		EntityID     string `yaml:"entity_id"`
		Domain       string `yaml:"domain"`
		AreaID       string `yaml:"area_id"`
		FriendlyName string `yaml:"friendly_name"`
	} `yaml:"entities"`
	Synergies []struct {
		ID          string   `yaml:"id"`
		SynergyType string   `yaml:"synergy_type"`
		DeviceIDs   []string `yaml:"device_ids"`
		Confidence  float64  `yaml:"confidence"`
		ImpactScore float64  `yaml:"impact_score"`
	} `yaml:"synergies"`
	Expect struct {
		Higher struct {
			DeviceA string `yaml:"device_a"`
			DeviceB string `yaml:"device_b"`
		} `yaml:"higher"`
		Lower struct {
			DeviceA string `yaml:"device_a"`
			DeviceB string `yaml:"device_b"`
		} `yaml:"lower"`
		MinMargin float64 `yaml:"min_margin"`
	} `yaml:"expect"`
}

func TestTrainScenarioEndToEnd(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "end_to_end.yaml"))
	require.NoError(t, err)

	var sc trainScenario
	require.NoError(t, yaml.Unmarshal(raw, &sc))

	cfg := config.NewConfig()
	cfg.ModelDir = t.TempDir()
	cfg.MinTrainingPairs = sc.Config.MinTrainingPairs
	cfg.NegativeRatio = sc.Config.NegativeRatio
	cfg.Epochs = sc.Config.Epochs
	cfg.Patience = sc.Config.Patience
	cfg.LearningRate = sc.Config.LearningRate
	cfg.HiddenDim = sc.Config.HiddenDim
	cfg.NumLayers = sc.Config.NumLayers
	cfg.TrainingSeed = sc.Config.TrainingSeed
	cfg.ValidationSplit = sc.Config.ValidationSplit

	entities := make([]ontology.Entity, 0, len(sc.Entities))
	for _, e := range sc.Entities {
		entities = append(entities, ontology.Entity{
			EntityID:     e.EntityID,
			Domain:       e.Domain,
			AreaID:       e.AreaID,
			FriendlyName: e.FriendlyName,
		})
	}
	synergies := make([]ontology.Synergy, 0, len(sc.Synergies))
	for _, s := range sc.Synergies {
		synergies = append(synergies, ontology.Synergy{
			ID:          s.ID,
			SynergyType: s.SynergyType,
			DeviceIDs:   s.DeviceIDs,
			Confidence:  s.Confidence,
			ImpactScore: s.ImpactScore,
		})
	}

	eng, _ := newTestEngine(t, cfg, entities, synergies, nil)
	ctx := context.Background()

	report, err := eng.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	require.Equal(t, "complete", report.Status)
	assert.NotEmpty(t, report.Version)
	assert.GreaterOrEqual(t, report.TrainingPairs, 1)

	higher, err := eng.Predict(ctx, sc.Expect.Higher.DeviceA, sc.Expect.Higher.DeviceB)
	require.NoError(t, err)
	lower, err := eng.Predict(ctx, sc.Expect.Lower.DeviceA, sc.Expect.Lower.DeviceB)
	require.NoError(t, err)

	assert.False(t, higher.Fallback)
	assert.Greater(t, higher.Score, lower.Score+sc.Expect.MinMargin,
		"the confirmed pairing must outscore the unrelated cross-area pair")

	assert.True(t, higher.SameArea)
	assert.False(t, lower.SameArea)
	assert.NotEmpty(t, lower.SpatialNote, "non-adjacent cross-area pairs carry an annotation")
}
