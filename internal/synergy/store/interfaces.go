// Package store supplies the pipeline's upstream data: entity
// snapshots, known synergies and device embeddings. The engine depends
// on these interfaces only; Postgres implementations serve production
// and in-memory ones serve tests and cold bootstrap.
package store

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// EntityStore lists the entity registry snapshot. An empty result is
// not an error; the pipeline treats it as "nothing to score yet".
type EntityStore interface {
	List(ctx context.Context, limit, offset int) ([]ontology.Entity, error)
}

// SynergyStore reads and persists known synergies, the source of
// positive training labels. An empty List signals a cold start.
type SynergyStore interface {
	List(ctx context.Context) ([]ontology.Synergy, error)
	Save(ctx context.Context, syn ontology.Synergy) error
}

// SimilarDevice is one result of an embedding similarity search,
// ordered by ascending cosine distance.
type SimilarDevice struct {
	EntityID string  `json:"entity_id"`
	AreaID   string  `json:"area_id,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Distance float64 `json:"distance"`
}

// DeviceEmbeddingStore persists per-device feature vectors and mines
// candidate pairs by vector similarity.
type DeviceEmbeddingStore interface {
	Upsert(ctx context.Context, entityID, areaID, domain string, embedding pgvector.Vector) error
	FindSimilarDevices(ctx context.Context, embedding pgvector.Vector, limit int) ([]SimilarDevice, error)
}
