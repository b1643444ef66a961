// Package store persists batch runs in PostgreSQL: the run configuration,
// the harvested candidates and one calculation result per candidate.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
	"github.com/CodedDrexler/eCalc-Auto/internal/reporting"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the PostgreSQL run repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ reporting.Sink = (*Store)(nil)

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        id UUID PRIMARY KEY,
        started_at TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL,
        analyzed_power DOUBLE PRECISION NOT NULL,
        configuration JSONB NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS candidates (
        run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        position INTEGER NOT NULL,
        motor_id TEXT NOT NULL,
        prop_diameter TEXT NOT NULL,
        prop_pitch TEXT NOT NULL,
        manufacturer_id TEXT NOT NULL,
        manufacturer TEXT NOT NULL,
        motor_name TEXT NOT NULL,
        motor_kv TEXT NOT NULL,
        drive_weight TEXT NOT NULL,
        raw_metadata TEXT NOT NULL,
        PRIMARY KEY (run_id, position)
    )`,
	`CREATE TABLE IF NOT EXISTS calculation_results (
        run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        position INTEGER NOT NULL,
        motor TEXT NOT NULL,
        manufacturer TEXT NOT NULL,
        succeeded BOOLEAN NOT NULL,
        match_mode TEXT NOT NULL,
        result JSONB NOT NULL,
        PRIMARY KEY (run_id, position)
    )`,
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

const (
	sqlInsertRun = `
        INSERT INTO runs (id, started_at, finished_at, analyzed_power, configuration)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            configuration = EXCLUDED.configuration;
    `
	sqlInsertCandidate = `
        INSERT INTO candidates (run_id, position, motor_id, prop_diameter, prop_pitch, manufacturer_id, manufacturer, motor_name, motor_kv, drive_weight, raw_metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (run_id, position) DO NOTHING;
    `
	sqlInsertResult = `
        INSERT INTO calculation_results (run_id, position, motor, manufacturer, succeeded, match_mode, result)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (run_id, position) DO UPDATE SET
            succeeded = EXCLUDED.succeeded,
            match_mode = EXCLUDED.match_mode,
            result = EXCLUDED.result;
    `
	sqlSelectRun = `
        SELECT started_at, finished_at, configuration
        FROM runs
        WHERE id = $1;
    `
	sqlSelectCandidates = `
        SELECT motor_id, prop_diameter, prop_pitch, manufacturer_id, manufacturer, motor_name, motor_kv, drive_weight, raw_metadata
        FROM candidates
        WHERE run_id = $1
        ORDER BY position ASC;
    `
	sqlSelectResults = `
        SELECT result
        FROM calculation_results
        WHERE run_id = $1
        ORDER BY position ASC;
    `
)

// Publish saves run; it lets the store act as a report sink.
func (s *Store) Publish(ctx context.Context, run *reporting.Run) error {
	return s.SaveRun(ctx, run)
}

// SaveRun writes run, its candidates and its results in one transaction.
// Saving the same run again updates the results.
func (s *Store) SaveRun(ctx context.Context, run *reporting.Run) error {
	cfg, err := json.Marshal(run.Configuration)
	if err != nil {
		return fmt.Errorf("failed to encode run configuration: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	if _, err := tx.Exec(ctx, sqlInsertRun, run.ID, run.StartedAt.UTC(), finished.UTC(), run.Configuration.AnalyzedPower, cfg); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for i, c := range run.Setups {
		if _, err := tx.Exec(ctx, sqlInsertCandidate,
			run.ID, i, c.MotorID, c.PropDiameterRaw, c.PropPitchRaw,
			c.ManufacturerID, c.ManufacturerName, c.MotorName, c.MotorKv,
			c.DriveWeight, c.RawMetadata,
		); err != nil {
			return fmt.Errorf("failed to insert candidate %d: %w", i, err)
		}
	}

	for i, r := range run.Results {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode result %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx, sqlInsertResult,
			run.ID, i, r.MotorName, r.Manufacturer, r.Succeeded(), string(r.TargetPowerMatchMode), data,
		); err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run saved.", zap.Stringer("run_id", run.ID), zap.Int("results", len(run.Results)))
	return nil
}

// LoadRun reads a stored run back.
func (s *Store) LoadRun(ctx context.Context, id uuid.UUID) (*reporting.Run, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRun, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run := &reporting.Run{ID: id}
	found := false
	for rows.Next() {
		var cfg []byte
		if err := rows.Scan(&run.StartedAt, &run.FinishedAt, &cfg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if err := json.Unmarshal(cfg, &run.Configuration); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode run configuration: %w", err)
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if run.Setups, err = s.loadCandidates(ctx, id); err != nil {
		return nil, err
	}
	if run.Results, err = s.loadResults(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) loadCandidates(ctx context.Context, id uuid.UUID) ([]records.CandidateRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectCandidates, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []records.CandidateRecord
	for rows.Next() {
		var c records.CandidateRecord
		if err := rows.Scan(
			&c.MotorID, &c.PropDiameterRaw, &c.PropPitchRaw,
			&c.ManufacturerID, &c.ManufacturerName, &c.MotorName, &c.MotorKv,
			&c.DriveWeight, &c.RawMetadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *Store) loadResults(ctx context.Context, id uuid.UUID) ([]calc.CalculationResult, error) {
	rows, err := s.pool.Query(ctx, sqlSelectResults, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []calc.CalculationResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		var r calc.CalculationResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
