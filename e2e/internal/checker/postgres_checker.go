package checker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresChecker validates database state after a scenario run.
type PostgresChecker struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresChecker opens a connection for state checks.
func NewPostgresChecker(connStr string, logger *log.Logger) (*PostgresChecker, error) {
	if logger == nil {
		logger = log.Default()
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresChecker{db: db, logger: logger}, nil
}

// DB exposes the underlying handle so the runner can seed fixtures
// over the same connection.
func (p *PostgresChecker) DB() *sql.DB {
	return p.db
}

// CheckQuery runs a single-value query and compares the result.
// Expected values of the form "~n" allow a ±20% tolerance.
func (p *PostgresChecker) CheckQuery(ctx context.Context, query string, expected interface{}) error {
	p.logger.Printf("Executing query: %s", query)

	var result interface{}
	if err := p.db.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	p.logger.Printf("Query result: %v (expected: %v)", result, expected)

	return compareResults(result, expected)
}

func compareResults(actual, expected interface{}) error {
	if expectedStr, ok := expected.(string); ok && strings.HasPrefix(expectedStr, "~") {
		return compareApproximate(actual, expectedStr)
	}

	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", expected)
	if actualStr == expectedStr {
		return nil
	}

	return fmt.Errorf("mismatch: expected %v, got %v", expected, actual)
}

// compareApproximate treats "~10" as 10 ±20%.
func compareApproximate(actual interface{}, expectedStr string) error {
	target, err := strconv.ParseFloat(strings.TrimPrefix(expectedStr, "~"), 64)
	if err != nil {
		return fmt.Errorf("invalid approximate value: %s", expectedStr)
	}

	var actualFloat float64
	switch v := actual.(type) {
	case int64:
		actualFloat = float64(v)
	case float64:
		actualFloat = v
	case []byte:
		actualFloat, err = strconv.ParseFloat(string(v), 64)
	case string:
		actualFloat, err = strconv.ParseFloat(v, 64)
	default:
		return fmt.Errorf("unsupported type for approximate comparison: %T", actual)
	}
	if err != nil {
		return fmt.Errorf("cannot convert actual value to number: %v", actual)
	}

	tolerance := target * 0.2
	if actualFloat >= target-tolerance && actualFloat <= target+tolerance {
		return nil
	}

	return fmt.Errorf("value %.2f not within 20%% of %.0f", actualFloat, target)
}

// Close closes the database connection.
func (p *PostgresChecker) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
