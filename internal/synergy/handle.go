package synergy

import (
	"sync"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/model"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// ModelHandle is the single shared reference to the loaded scorer. The
// scorer itself does no locking (single-writer, multi-reader contract),
// so the handle adds the synchronization that lets predictions keep
// serving the previously loaded model while training swaps in a new one.
type ModelHandle struct {
	mu      sync.RWMutex
	scorer  *model.Scorer
	version string
}

// NewModelHandle wraps an initial scorer, typically untrained at startup.
func NewModelHandle(scorer *model.Scorer) *ModelHandle {
	return &ModelHandle{scorer: scorer}
}

// Predict scores a pair against the currently loaded model.
func (h *ModelHandle) Predict(g *graph.DeviceGraph, deviceA, deviceB string) (model.Prediction, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scorer.Predict(g, deviceA, deviceB)
}

// LearnMany applies incremental updates to the loaded model. It takes the
// write lock, so predictions issued during the update wait for it.
func (h *ModelHandle) LearnMany(g *graph.DeviceGraph, pairs []ontology.TrainingPair) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scorer.LearnMany(g, pairs)
}

// Snapshot captures the loaded model's state for persistence.
func (h *ModelHandle) Snapshot() model.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scorer.Snapshot()
}

// Trained reports whether the loaded model has been trained.
func (h *ModelHandle) Trained() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scorer.Trained()
}

// Version returns the version id of the loaded model, empty before the
// first training run or restore.
func (h *ModelHandle) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Swap replaces the loaded model and its version id.
func (h *ModelHandle) Swap(scorer *model.Scorer, version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scorer = scorer
	h.version = version
}

// SetVersion updates the version id without touching the model, used
// after an incremental update persists the already-loaded scorer under a
// new version.
func (h *ModelHandle) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}
