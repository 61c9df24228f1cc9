package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// EntityStorage reads the entity registry snapshot from PostgreSQL.
type EntityStorage struct {
	db *sql.DB
}

// NewEntityStorage creates entity storage over an open database handle.
func NewEntityStorage(db *sql.DB) *EntityStorage {
	return &EntityStorage{db: db}
}

// List returns up to limit entities starting at offset, in stable
// entity_id order. An empty table yields an empty slice, not an error.
func (s *EntityStorage) List(ctx context.Context, limit, offset int) ([]ontology.Entity, error) {
	if limit <= 0 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT entity_id, COALESCE(domain, ''), COALESCE(area_id, ''), COALESCE(friendly_name, '')
		FROM entities
		ORDER BY entity_id
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []ontology.Entity
	for rows.Next() {
		var entity ontology.Entity
		if err := rows.Scan(&entity.EntityID, &entity.Domain, &entity.AreaID, &entity.FriendlyName); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity rows: %w", err)
	}

	return entities, nil
}

// SynergyStorage persists known synergies in PostgreSQL.
type SynergyStorage struct {
	db *sql.DB
}

// NewSynergyStorage creates synergy storage over an open database
// handle.
func NewSynergyStorage(db *sql.DB) *SynergyStorage {
	return &SynergyStorage{db: db}
}

// List returns all known synergies, newest first.
func (s *SynergyStorage) List(ctx context.Context) ([]ontology.Synergy, error) {
	query := `
		SELECT synergy_id, device_ids, COALESCE(synergy_type, ''), impact_score,
		       confidence, COALESCE(area, ''), validated_by_patterns, detected_at
		FROM synergies
		ORDER BY detected_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query synergies: %w", err)
	}
	defer rows.Close()

	var synergies []ontology.Synergy
	for rows.Next() {
		var syn ontology.Synergy
		if err := rows.Scan(
			&syn.ID,
			pq.Array(&syn.DeviceIDs),
			&syn.SynergyType,
			&syn.ImpactScore,
			&syn.Confidence,
			&syn.Area,
			&syn.ValidatedByPatterns,
			&syn.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan synergy row: %w", err)
		}
		synergies = append(synergies, syn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating synergy rows: %w", err)
	}

	return synergies, nil
}

// Save upserts a synergy by id.
func (s *SynergyStorage) Save(ctx context.Context, syn ontology.Synergy) error {
	if err := syn.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid synergy: %w", err)
	}
	if syn.DetectedAt.IsZero() {
		syn.DetectedAt = time.Now()
	}

	query := `
		INSERT INTO synergies (
			synergy_id, device_ids, synergy_type, impact_score,
			confidence, area, validated_by_patterns, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (synergy_id)
		DO UPDATE SET
			device_ids = EXCLUDED.device_ids,
			synergy_type = EXCLUDED.synergy_type,
			impact_score = EXCLUDED.impact_score,
			confidence = EXCLUDED.confidence,
			area = EXCLUDED.area,
			validated_by_patterns = EXCLUDED.validated_by_patterns,
			detected_at = EXCLUDED.detected_at
	`

	_, err := s.db.ExecContext(ctx, query,
		syn.ID,
		pq.Array(syn.DeviceIDs),
		syn.SynergyType,
		syn.ImpactScore,
		syn.Confidence,
		syn.Area,
		syn.ValidatedByPatterns,
		syn.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert synergy: %w", err)
	}
	return nil
}

// EmbeddingStorage persists device feature vectors in PostgreSQL with
// pgvector and serves similarity searches over them.
type EmbeddingStorage struct {
	db *sql.DB
}

// NewEmbeddingStorage creates embedding storage over an open database
// handle.
func NewEmbeddingStorage(db *sql.DB) *EmbeddingStorage {
	return &EmbeddingStorage{db: db}
}

// Upsert stores the current embedding for a device.
func (s *EmbeddingStorage) Upsert(ctx context.Context, entityID, areaID, domain string, embedding pgvector.Vector) error {
	query := `
		INSERT INTO device_embeddings (entity_id, area_id, domain, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id)
		DO UPDATE SET
			area_id = EXCLUDED.area_id,
			domain = EXCLUDED.domain,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, entityID, areaID, domain, embedding, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert device embedding: %w", err)
	}
	return nil
}

// FindSimilarDevices returns up to limit devices ordered by cosine
// distance to the given embedding, most similar first.
func (s *EmbeddingStorage) FindSimilarDevices(ctx context.Context, embedding pgvector.Vector, limit int) ([]SimilarDevice, error) {
	query := `
		SELECT entity_id, COALESCE(area_id, ''), COALESCE(domain, ''),
		       embedding <=> $1 AS distance
		FROM device_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar devices: %w", err)
	}
	defer rows.Close()

	var devices []SimilarDevice
	for rows.Next() {
		var device SimilarDevice
		if err := rows.Scan(&device.EntityID, &device.AreaID, &device.Domain, &device.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan similar device row: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar device rows: %w", err)
	}

	return devices, nil
}
