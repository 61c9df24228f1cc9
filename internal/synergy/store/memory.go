package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/graph"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// MemoryEntityStore is an in-memory EntityStore for tests and cold
// bootstrap.
type MemoryEntityStore struct {
	mu       sync.RWMutex
	entities []ontology.Entity
}

// NewMemoryEntityStore creates an in-memory entity store with an
// initial snapshot.
func NewMemoryEntityStore(entities []ontology.Entity) *MemoryEntityStore {
	return &MemoryEntityStore{entities: append([]ontology.Entity(nil), entities...)}
}

// SetEntities replaces the stored snapshot.
func (s *MemoryEntityStore) SetEntities(entities []ontology.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append([]ontology.Entity(nil), entities...)
}

// List implements EntityStore.
func (s *MemoryEntityStore) List(_ context.Context, limit, offset int) ([]ontology.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.entities) {
		return nil, nil
	}
	end := len(s.entities)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]ontology.Entity(nil), s.entities[offset:end]...), nil
}

// MemorySynergyStore is an in-memory SynergyStore.
type MemorySynergyStore struct {
	mu        sync.RWMutex
	synergies map[string]ontology.Synergy
	order     []string
}

// NewMemorySynergyStore creates an in-memory synergy store with
// initial synergies.
func NewMemorySynergyStore(synergies []ontology.Synergy) *MemorySynergyStore {
	s := &MemorySynergyStore{synergies: make(map[string]ontology.Synergy)}
	for _, syn := range synergies {
		if _, seen := s.synergies[syn.ID]; !seen {
			s.order = append(s.order, syn.ID)
		}
		s.synergies[syn.ID] = syn
	}
	return s
}

// List implements SynergyStore, returning synergies in insertion order.
func (s *MemorySynergyStore) List(_ context.Context) ([]ontology.Synergy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ontology.Synergy, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.synergies[id])
	}
	return out, nil
}

// Save implements SynergyStore with upsert-by-id semantics.
func (s *MemorySynergyStore) Save(_ context.Context, syn ontology.Synergy) error {
	if err := syn.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.synergies[syn.ID]; !seen {
		s.order = append(s.order, syn.ID)
	}
	s.synergies[syn.ID] = syn
	return nil
}

// memoryEmbedding is one stored device vector.
type memoryEmbedding struct {
	entityID string
	areaID   string
	domain   string
	vector   []float32
}

// MemoryEmbeddingStore is an in-memory DeviceEmbeddingStore using the
// same cosine-distance ordering as the pgvector-backed one.
type MemoryEmbeddingStore struct {
	mu         sync.RWMutex
	embeddings map[string]memoryEmbedding
}

// NewMemoryEmbeddingStore creates an empty in-memory embedding store.
func NewMemoryEmbeddingStore() *MemoryEmbeddingStore {
	return &MemoryEmbeddingStore{embeddings: make(map[string]memoryEmbedding)}
}

// Upsert implements DeviceEmbeddingStore.
func (s *MemoryEmbeddingStore) Upsert(_ context.Context, entityID, areaID, domain string, embedding pgvector.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[entityID] = memoryEmbedding{
		entityID: entityID,
		areaID:   areaID,
		domain:   domain,
		vector:   append([]float32(nil), embedding.Slice()...),
	}
	return nil
}

// FindSimilarDevices implements DeviceEmbeddingStore, ordering by
// ascending cosine distance with entity_id as a stable tie-break.
func (s *MemoryEmbeddingStore) FindSimilarDevices(_ context.Context, embedding pgvector.Vector, limit int) ([]SimilarDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	probe := embedding.Slice()
	devices := make([]SimilarDevice, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		devices = append(devices, SimilarDevice{
			EntityID: emb.entityID,
			AreaID:   emb.areaID,
			Domain:   emb.domain,
			Distance: 1 - graph.CosineSimilarity(probe, emb.vector),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Distance != devices[j].Distance {
			return devices[i].Distance < devices[j].Distance
		}
		return devices[i].EntityID < devices[j].EntityID
	})

	if limit > 0 && limit < len(devices) {
		devices = devices[:limit]
	}
	return devices, nil
}
