// Package database opens the PostgreSQL connection pool backing the
// notification store, instrumented with OpenTelemetry.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DB wraps *sql.DB so the pool can grow instrumentation-specific helpers
// without leaking database/sql everywhere.
type DB struct {
	*sql.DB
}

// Open establishes an instrumented connection pool against dsn (a
// postgres:// DSN, e.g. Config.DatabaseURL).
func Open(dsn string, logger *logrus.Logger) (*DB, error) {
	logger.Info("establishing database connection")

	db, err := otelsql.Open("postgres", dsn, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemPostgreSQL)); err != nil {
		logger.WithError(err).Warn("failed to register database stats metrics")
	}

	logger.Info("database connection established")
	return &DB{db}, nil
}

// Close releases the pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health pings the database, used by the /health endpoint.
func (db *DB) Health() error {
	return db.Ping()
}
