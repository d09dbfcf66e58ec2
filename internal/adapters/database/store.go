package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	"github.com/zatekoja/bedflow/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/bedflow/internal/infrastructure/clients/sqlite"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
)

// Dialect names accepted by NewStore
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

const (
	tableWards         = "wards"
	tableBeds          = "beds"
	tableRequests      = "admission_requests"
	tableDailyRecords  = "daily_records"
	dailyRecordDateFmt = "2006-01-02"
)

// Store implements repositories.Store on top of a SQL database. Queries are built with goqu
// so the same adapter serves PostgreSQL and SQLite.
type Store struct {
	db      *sql.DB
	q       *goqu.Database
	dialect string
	metrics *observability.Metrics
}

var _ repositories.Store = (*Store)(nil)

// NewStore creates a store over an open database using the given goqu dialect
func NewStore(db *sql.DB, dialect string) *Store {
	return &Store{
		db:      db,
		q:       goqu.New(dialect, db),
		dialect: dialect,
	}
}

// NewPostgresStore creates a store backed by a PostgreSQL client
func NewPostgresStore(client *postgres.Client) *Store {
	return NewStore(client.DB(), DialectPostgres)
}

// NewSQLiteStore creates a store backed by a SQLite client
func NewSQLiteStore(client *sqlite.Client) *Store {
	return NewStore(client.DB(), DialectSQLite)
}

// WithMetrics records write and history query latency on the given instruments
func (s *Store) WithMetrics(metrics *observability.Metrics) *Store {
	s.metrics = metrics
	return s
}

func (s *Store) observe(ctx context.Context, operation string, start time.Time) {
	observability.RecordDBMetric(ctx, s.metrics, operation, time.Since(start))
}

// Migrate creates the schema when it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if s.dialect == DialectSQLite {
		ts = "TIMESTAMP"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS wards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			ward_type TEXT,
			capacity INTEGER NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS beds (
			id TEXT PRIMARY KEY,
			ward_id TEXT NOT NULL REFERENCES wards(id),
			label TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			equipment_tag TEXT,
			patient_ref TEXT,
			request_id TEXT,
			status_changed_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_beds_ward_status ON beds (ward_id, status)`,
		`CREATE TABLE IF NOT EXISTS admission_requests (
			id TEXT PRIMARY KEY,
			patient_ref TEXT NOT NULL,
			ward_preference TEXT NOT NULL,
			equipment_tag TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			eta ` + ts + ` NOT NULL,
			expected_discharge_at ` + ts + `,
			status TEXT NOT NULL,
			assigned_bed_id TEXT,
			reservation_expires_at ` + ts + `,
			denial_reason TEXT,
			cancel_reason TEXT,
			transfers TEXT NOT NULL DEFAULT '[]',
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_admission_requests_status ON admission_requests (status)`,
		`CREATE TABLE IF NOT EXISTS daily_records (
			day TEXT PRIMARY KEY,
			wards TEXT NOT NULL,
			hospital TEXT NOT NULL,
			snapshots TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Info().Str("dialect", s.dialect).Msg("database schema ready")
	return nil
}

// Close implements repositories.Store. The owning client closes the connection.
func (s *Store) Close() error {
	return nil
}

// withTx runs fn inside a transaction, rolling back on error
func (s *Store) withTx(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error {
	tx, err := s.q.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx.Wrap(func() error { return fn(tx) })
}

// upsert builds an insert that overwrites every non-key column on conflict
func upsert(tx *goqu.TxDatabase, table, key string, rec goqu.Record) *goqu.InsertDataset {
	update := goqu.Record{}
	for col := range rec {
		if col != key {
			update[col] = goqu.L("EXCLUDED." + col)
		}
	}
	return tx.Insert(table).Rows(rec).OnConflict(goqu.DoUpdate(key, update))
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	value := ns.String
	return &value
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	value := nt.Time.UTC()
	return &value
}
