package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
)

// SQLiteStore implements SQLite-based history storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite history store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_history_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        operation TEXT NOT NULL,
        archive TEXT NOT NULL,
        product_version TEXT,
        start_time TIMESTAMP NOT NULL,
        end_time TIMESTAMP,
        success INTEGER NOT NULL DEFAULT 0,
        warnings TEXT,
        errors TEXT
    );

    CREATE INDEX IF NOT EXISTS idx_runs_start ON runs(start_time);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Record upserts run.
func (s *SQLiteStore) Record(run *models.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":    run.ID,
		"operation": run.Operation,
	}).Debug("Recording run in SQLite")

	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	var end sql.NullTime
	if !run.EndTime.IsZero() {
		end = sql.NullTime{Time: run.EndTime.UTC(), Valid: true}
	}

	_, err = s.db.Exec(`
        INSERT INTO runs (id, operation, archive, product_version, start_time, end_time, success, warnings, errors)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            operation = excluded.operation,
            archive = excluded.archive,
            product_version = excluded.product_version,
            start_time = excluded.start_time,
            end_time = excluded.end_time,
            success = excluded.success,
            warnings = excluded.warnings,
            errors = excluded.errors
    `, run.ID, string(run.Operation), run.Archive, run.ProductVersion,
		run.StartTime.UTC(), end, run.Success, string(warnings), string(errs))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	return nil
}

// List returns the most recent runs first.
func (s *SQLiteStore) List(limit int) ([]*models.RunRecord, error) {
	query := `
        SELECT id, operation, archive, product_version, start_time, end_time, success, warnings, errors
        FROM runs
        ORDER BY start_time DESC
    `
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Get returns the run with id.
func (s *SQLiteStore) Get(id string) (*models.RunRecord, error) {
	row := s.db.QueryRow(`
        SELECT id, operation, archive, product_version, start_time, end_time, success, warnings, errors
        FROM runs
        WHERE id = ?
    `, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return run, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.RunRecord, error) {
	var (
		run            models.RunRecord
		op             string
		productVersion sql.NullString
		start          time.Time
		end            sql.NullTime
		warnings, errs sql.NullString
	)

	err := row.Scan(&run.ID, &op, &run.Archive, &productVersion, &start, &end, &run.Success, &warnings, &errs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}

	run.Operation = models.Operation(op)
	run.ProductVersion = productVersion.String
	run.StartTime = start
	if end.Valid {
		run.EndTime = end.Time
	}

	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &run.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings of run %s: %w", run.ID, err)
		}
	}
	if errs.Valid && errs.String != "" {
		if err := json.Unmarshal([]byte(errs.String), &run.Errors); err != nil {
			return nil, fmt.Errorf("decode errors of run %s: %w", run.ID, err)
		}
	}

	return &run, nil
}
