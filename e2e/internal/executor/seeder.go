package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/scenario"
)

// SeedDatabase installs the scenario's entity registry and known
// synergies before any step runs, so training sees a deterministic
// upstream state. Rows are upserted; reruns against the same database
// converge to the scenario's fixture.
func SeedDatabase(ctx context.Context, db *sql.DB, seed scenario.SeedConfig, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	for _, entity := range seed.Entities {
		query := `
			INSERT INTO entities (entity_id, domain, area_id, friendly_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (entity_id)
			DO UPDATE SET
				domain = EXCLUDED.domain,
				area_id = EXCLUDED.area_id,
				friendly_name = EXCLUDED.friendly_name
		`
		if _, err := db.ExecContext(ctx, query, entity.EntityID, entity.Domain, entity.AreaID, entity.FriendlyName); err != nil {
			return fmt.Errorf("failed to seed entity %s: %w", entity.EntityID, err)
		}
	}

	for _, syn := range seed.Synergies {
		query := `
			INSERT INTO synergies (
				synergy_id, device_ids, synergy_type, impact_score,
				confidence, area, validated_by_patterns, detected_at
			) VALUES ($1, $2, $3, $4, $5, $6, false, $7)
			ON CONFLICT (synergy_id)
			DO UPDATE SET
				device_ids = EXCLUDED.device_ids,
				synergy_type = EXCLUDED.synergy_type,
				impact_score = EXCLUDED.impact_score,
				confidence = EXCLUDED.confidence,
				area = EXCLUDED.area
		`
		if _, err := db.ExecContext(ctx, query,
			syn.ID,
			pq.Array(syn.DeviceIDs),
			syn.SynergyType,
			syn.ImpactScore,
			syn.Confidence,
			syn.Area,
			time.Now(),
		); err != nil {
			return fmt.Errorf("failed to seed synergy %s: %w", syn.ID, err)
		}
	}

	logger.Printf("Seeded %d entities and %d synergies", len(seed.Entities), len(seed.Synergies))

	return nil
}
