package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
)

// JSONStore keeps the run history in a single checksummed JSON file.
type JSONStore struct {
	path   string
	logger *events.Logger

	mu sync.RWMutex
}

// NewJSONStore creates a JSON-based history store in baseDir.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	return &JSONStore{
		path:   filepath.Join(baseDir, "history.json"),
		logger: logger.WithField("component", "json_history_store"),
	}, nil
}

// Record appends run to the history file.
func (s *JSONStore) Record(run *models.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":    run.ID,
		"operation": run.Operation,
		"runs":      len(runs),
	}).Debug("Recording run")

	runs = slices.DeleteFunc(runs, func(r *models.RunRecord) bool { return r.ID == run.ID })
	runs = append(runs, run.Clone())

	return s.save(runs)
}

// List returns the most recent runs first.
func (s *JSONStore) List(limit int) ([]*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(runs, func(a, b *models.RunRecord) int {
		return b.StartTime.Compare(a.StartTime)
	})

	return limitRuns(runs, limit), nil
}

// Get returns the run with id.
func (s *JSONStore) Get(id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrRecordNotFound
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

func (s *JSONStore) backupPath() string {
	return s.path + ".backup"
}

func (s *JSONStore) load() ([]*models.RunRecord, error) {
	s.logger.WithField("path", s.path).Debug("Loading history")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	runs, err := decodeHistory(data)
	if err == nil {
		return runs, nil
	}

	s.logger.WithError(err).Error("History file is corrupt")

	if backup, berr := os.ReadFile(s.backupPath()); berr == nil {
		if runs, berr := decodeHistory(backup); berr == nil {
			s.logger.Warn("Loaded history from backup due to corruption")
			return runs, nil
		}
	}

	return nil, ErrStateCorrupt
}

func (s *JSONStore) save(runs []*models.RunRecord) error {
	data, err := encodeHistory(runs, time.Now().UTC())
	if err != nil {
		return err
	}

	// Keep the last good copy around
	if current, err := os.ReadFile(s.path); err == nil {
		if _, err := decodeHistory(current); err == nil {
			if err := renameio.WriteFile(s.backupPath(), current, 0600); err != nil {
				s.logger.WithError(err).Warn("Failed to create backup")
			}
		}
	}

	if err := renameio.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}

	return nil
}

func checksum(h History) (string, error) {
	h.Checksum = ""
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal history for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func encodeHistory(runs []*models.RunRecord, now time.Time) ([]byte, error) {
	h := History{
		Runs:          runs,
		SchemaVersion: CurrentSchemaVersion,
		CreatedAt:     now,
	}

	sum, err := checksum(h)
	if err != nil {
		return nil, err
	}
	h.Checksum = sum

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal history with checksum: %w", err)
	}
	return data, nil
}

func decodeHistory(data []byte) ([]*models.RunRecord, error) {
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateCorrupt, err)
	}

	if h.Checksum != "" {
		sum, err := checksum(h)
		if err != nil {
			return nil, err
		}
		if sum != h.Checksum {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrStateCorrupt)
		}
	}

	if h.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrStateCorrupt, h.SchemaVersion)
	}

	return h.Runs, nil
}
