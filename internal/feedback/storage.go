package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/calibration"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

// Storage applies feedback events to the acceptance counters.
// PostgreSQL keeps the durable history, Redis mirrors live counts per
// (pattern_type, band) hash for fast calibration reads.
type Storage struct {
	db     *sql.DB
	redis  redis.Client
	logger *slog.Logger
}

// NewStorage creates feedback storage. Either backend may be nil: with
// no database only the Redis mirror moves, with no Redis the mirror is
// skipped and calibration reads fall through to PostgreSQL.
func NewStorage(db *sql.DB, redisClient redis.Client, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{db: db, redis: redisClient, logger: logger}
}

// Record increments the counters for the event's pattern type and
// confidence band in both backends.
func (s *Storage) Record(ctx context.Context, event *Event) error {
	band := event.Band()
	accepted := 0
	if event.Accepted {
		accepted = 1
	}

	if s.db != nil {
		query := `
			INSERT INTO pattern_feedback_counters (pattern_type, confidence_band, total, accepted, updated_at)
			VALUES ($1, $2, 1, $3, $4)
			ON CONFLICT (pattern_type, confidence_band)
			DO UPDATE SET
				total = pattern_feedback_counters.total + 1,
				accepted = pattern_feedback_counters.accepted + EXCLUDED.accepted,
				updated_at = EXCLUDED.updated_at
		`

		if _, err := s.db.ExecContext(ctx, query, event.PatternType, band, accepted, time.Now()); err != nil {
			return fmt.Errorf("failed to upsert feedback counter: %w", err)
		}
	}

	s.mirror(ctx, event.PatternType, band, accepted)
	return nil
}

// mirror moves the live Redis counters. Mirror failures only degrade
// calibration reads to the PostgreSQL fallback, so they are logged
// rather than returned.
func (s *Storage) mirror(ctx context.Context, patternType, band string, accepted int) {
	if s.redis == nil {
		return
	}

	key := redis.AcceptanceKey(patternType, band)
	if _, err := s.redis.HIncrBy(ctx, key, "total", 1); err != nil {
		s.logger.Warn("Failed to mirror feedback total", "key", key, "error", err)
		return
	}
	if _, err := s.redis.HIncrBy(ctx, key, "accepted", int64(accepted)); err != nil {
		s.logger.Warn("Failed to mirror feedback accepted count", "key", key, "error", err)
	}
}

// Reader serves calibration lookups from the mirrored Redis counters,
// falling back to the authoritative PostgreSQL totals when the mirror
// is cold or unavailable. It implements calibration.AcceptanceSource.
type Reader struct {
	db     *sql.DB
	redis  redis.Client
	logger *slog.Logger
}

// NewReader creates a counter reader over the given backends.
func NewReader(db *sql.DB, redisClient redis.Client, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{db: db, redis: redisClient, logger: logger}
}

// Stats sums the 0.1-wide counter buckets overlapping the requested
// confidence band for one pattern type.
func (r *Reader) Stats(ctx context.Context, patternType string, band calibration.Band) (ontology.AcceptanceStats, error) {
	buckets := bucketsOverlapping(band)

	if stats, ok := r.statsFromRedis(ctx, patternType, buckets); ok {
		return stats, nil
	}
	return r.statsFromPostgres(ctx, patternType, buckets)
}

// statsFromRedis reads the mirrored hashes. It reports ok=false when
// Redis is absent, errors, or holds no counts for any bucket, so the
// caller falls through to PostgreSQL.
func (r *Reader) statsFromRedis(ctx context.Context, patternType string, buckets []string) (ontology.AcceptanceStats, bool) {
	if r.redis == nil {
		return ontology.AcceptanceStats{}, false
	}

	var stats ontology.AcceptanceStats
	for _, bucket := range buckets {
		key := redis.AcceptanceKey(patternType, bucket)
		fields, err := r.redis.HGetAll(ctx, key)
		if err != nil {
			r.logger.Warn("Failed to read feedback mirror", "key", key, "error", err)
			return ontology.AcceptanceStats{}, false
		}
		stats.Total += parseCount(fields["total"])
		stats.Accepted += parseCount(fields["accepted"])
	}

	if stats.Total == 0 {
		return ontology.AcceptanceStats{}, false
	}
	return stats, true
}

func (r *Reader) statsFromPostgres(ctx context.Context, patternType string, buckets []string) (ontology.AcceptanceStats, error) {
	if r.db == nil {
		return ontology.AcceptanceStats{}, nil
	}

	query := `
		SELECT COALESCE(SUM(total), 0), COALESCE(SUM(accepted), 0)
		FROM pattern_feedback_counters
		WHERE pattern_type = $1 AND confidence_band = ANY($2)
	`

	var stats ontology.AcceptanceStats
	row := r.db.QueryRowContext(ctx, query, patternType, pq.Array(buckets))
	if err := row.Scan(&stats.Total, &stats.Accepted); err != nil {
		return ontology.AcceptanceStats{}, fmt.Errorf("failed to query feedback counters: %w", err)
	}
	return stats, nil
}

// bucketsOverlapping returns the band labels whose 0.1-wide interval
// intersects the calibration band. Bounds are scaled to integer tenths
// so bucket edges stay exact.
func bucketsOverlapping(band calibration.Band) []string {
	first := int(band.Low*10 + 1e-9)
	last := int(band.High*10 + 1e-9)
	if first < 0 {
		first = 0
	}
	if last > 9 {
		last = 9
	}

	buckets := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		buckets = append(buckets, fmt.Sprintf("%.1f", float64(i)/10))
	}
	return buckets
}

func parseCount(value string) int {
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
