package state

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
)

// Store persists the history of migration runs.
type Store interface {
	// Record saves a run, replacing any earlier record with the same ID.
	Record(run *models.RunRecord) error

	// List returns the most recent runs first. A limit <= 0 returns all.
	List(limit int) ([]*models.RunRecord, error)

	// Get retrieves a single run.
	Get(id string) (*models.RunRecord, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrRecordNotFound = errors.New("run record not found")
	ErrStateCorrupt   = errors.New("history file is corrupt")
)

// History extends the run list with store metadata.
type History struct {
	Runs []*models.RunRecord `json:"runs"`

	// Store metadata
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// Open opens the history store for backend under dir.
func Open(backend, dir string, logger *events.Logger) (Store, error) {
	switch backend {
	case "json", "":
		return NewJSONStore(dir, logger)
	case "sqlite":
		return NewSQLiteStore(filepath.Join(dir, "history.db"), logger)
	default:
		return nil, fmt.Errorf("unknown history backend: %s", backend)
	}
}

// limitRuns truncates runs, sorted newest first, to limit.
func limitRuns(runs []*models.RunRecord, limit int) []*models.RunRecord {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}
