// Package migration is the high level entry point of the migrator: it turns a
// configuration into export, import and decrypt runs and keeps their history.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/config"
	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/migratables/files"
	"github.com/TheMichaelB/migrator/internal/migratables/platform"
	core "github.com/TheMichaelB/migrator/internal/migration"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/internal/report"
	"github.com/TheMichaelB/migrator/internal/state"
	"github.com/TheMichaelB/migrator/internal/storage"
)

// ArchiveTimeFormat stamps exported archive names.
const ArchiveTimeFormat = "20060102150405"

// ExportOptions tune a single export.
type ExportOptions struct {
	Dir   string // Overrides the configured archive directory
	Plain bool   // Skip encryption even when configured
}

// ImportOptions tune a single import.
type ImportOptions struct {
	ProductVersion string // Overrides the installed product version
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Archive string
	Output  string // Plain copy written by a decrypt
	Report  *report.Report
}

// Service provides high-level migration operations.
type Service struct {
	cfg         *config.Config
	home        *paths.Home
	history     state.Store
	migratables []core.Migratable
	logger      *events.Logger
	now         func() time.Time

	overrides  props.Map
	passphrase string
}

// NewService creates a migration service. A nil history disables run
// recording.
func NewService(cfg *config.Config, history state.Store, logger *events.Logger, migratables ...core.Migratable) (*Service, error) {
	home, err := paths.NewHome(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}

	if len(migratables) == 0 {
		migratables = DefaultMigratables(cfg)
	}

	return &Service{
		cfg:         cfg,
		home:        home,
		history:     history,
		migratables: migratables,
		logger:      logger.WithField("service", "migration"),
		now:         time.Now,
		overrides:   props.Map{},
	}, nil
}

// DefaultMigratables returns the platform migratable followed by the
// configured file migratables.
func DefaultMigratables(cfg *config.Config) []core.Migratable {
	return append([]core.Migratable{platform.New()}, files.FromConfig(cfg.Migratables)...)
}

// SetPassphrase sets the passphrase sealing and opening key files.
func (s *Service) SetPassphrase(passphrase string) {
	s.passphrase = passphrase
}

// SetProperty overrides a system property for subsequent runs.
func (s *Service) SetProperty(name, value string) {
	s.overrides[name] = value
}

// Home returns the installation home.
func (s *Service) Home() *paths.Home {
	return s.home
}

// ProductVersion returns the configured product version, read from the
// version file when not set explicitly.
func (s *Service) ProductVersion() (string, error) {
	if v := strings.TrimSpace(s.cfg.Product.Version); v != "" {
		return v, nil
	}

	path := s.home.Resolve(s.cfg.Product.VersionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read version file: %w", err)
	}

	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("version file %s is empty", path)
	}
	return v, nil
}

// ArchiveName returns the file name of an archive exported at t.
func (s *Service) ArchiveName(productVersion string, t time.Time) string {
	return fmt.Sprintf("%s-%s-%s%s", s.cfg.Archive.Prefix, productVersion, t.Format(ArchiveTimeFormat), archive.Extension)
}

// Export exports every migratable into a new archive.
func (s *Service) Export(ctx context.Context, opts ExportOptions) (*Result, error) {
	ctx, logger, runID := s.begin(ctx, models.OperationExport)

	version, err := s.ProductVersion()
	if err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		dir = s.cfg.ResolvePath(s.cfg.Archive.Dir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	env, err := s.environment(logger)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, s.ArchiveName(version, s.now()))
	archiveOpts := s.archiveOptions(path, s.cfg.Archive.Encrypt && !opts.Plain)

	logger.WithFields(map[string]interface{}{
		"archive":   path,
		"encrypted": archiveOpts.Encrypted,
		"version":   version,
	}).Info("Starting export")

	rep := core.NewExportManager(env, version, s.migratables...).Export(path, archiveOpts)

	return s.finish(ctx, runID, path, version, rep), nil
}

// Import restores the archive at path onto the installation.
func (s *Service) Import(ctx context.Context, path string, opts ImportOptions) (*Result, error) {
	ctx, logger, runID := s.begin(ctx, models.OperationImport)

	version := opts.ProductVersion
	if version == "" {
		v, err := s.ProductVersion()
		if err != nil {
			return nil, err
		}
		version = v
	}

	env, err := s.environment(logger)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.isEncrypted(path)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"archive":   path,
		"encrypted": encrypted,
		"version":   version,
	}).Info("Starting import")

	rep := core.NewImportManager(env, version, s.migratables...).Import(path, s.archiveOptions(path, encrypted))

	return s.finish(ctx, runID, path, version, rep), nil
}

// Decrypt writes a plain copy of the encrypted archive at path to dest,
// defaulting to the archive name with a .zip extension.
func (s *Service) Decrypt(ctx context.Context, path, dest string) (*Result, error) {
	ctx, logger, runID := s.begin(ctx, models.OperationDecrypt)

	if dest == "" {
		dest = strings.TrimSuffix(path, archive.Extension) + ".zip"
	}
	if filepath.Clean(dest) == filepath.Clean(path) {
		return nil, fmt.Errorf("destination %s is the archive itself", dest)
	}

	logger.WithFields(map[string]interface{}{
		"archive":     path,
		"destination": dest,
	}).Info("Starting decrypt")

	rep := core.NewDecryptManager(logger).Decrypt(path, s.archiveOptions(path, true), dest)

	res := s.finish(ctx, runID, path, "", rep)
	res.Output = dest
	return res, nil
}

// History returns the most recent runs first.
func (s *Service) History(limit int) ([]*models.RunRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(limit)
}

func (s *Service) begin(ctx context.Context, op models.Operation) (context.Context, *events.Logger, string) {
	runID := uuid.NewString()

	ctx = events.WithLogger(ctx, s.logger)
	ctx = events.WithOperation(ctx, op.Verb())
	ctx = events.WithRunID(ctx, runID)

	return ctx, events.FromContext(ctx), runID
}

func (s *Service) environment(logger *events.Logger) (core.Environment, error) {
	store, err := storage.NewLocalStore(s.home.Dir(), logger)
	if err != nil {
		return core.Environment{}, fmt.Errorf("open home store: %w", err)
	}
	store.SetMaxFileSize(s.cfg.Storage.MaxFileSize)
	store.SetMaxPathLength(s.cfg.Storage.MaxPathLength)

	if len(s.overrides) > 0 {
		logger.WithField("properties", s.overrides.Names()).Debug("Overriding system properties")
	}

	return core.Environment{
		Home: s.home,
		Props: props.Layered{
			s.overrides,
			props.NewFile(s.home.Resolve(s.cfg.Properties.SystemFile)),
		},
		Store:  store,
		Logger: logger,
	}, nil
}

func (s *Service) archiveOptions(path string, encrypted bool) archive.Options {
	return archive.Options{
		Encrypted:    encrypted,
		KeyPath:      path + s.cfg.Archive.KeySuffix,
		ChecksumPath: path + s.cfg.Archive.ChecksumSuffix,
		Passphrase:   s.passphrase,
	}
}

// isEncrypted reports whether the archive at path comes with a checksum file.
func (s *Service) isEncrypted(path string) (bool, error) {
	_, err := os.Stat(path + s.cfg.Archive.ChecksumSuffix)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat checksum file: %w", err)
	}
}

func (s *Service) finish(ctx context.Context, runID, path, version string, rep *report.Report) *Result {
	logger := events.FromContext(ctx)
	summary := rep.Summary()

	logger.WithFields(map[string]interface{}{
		"success":  summary.Success,
		"warnings": len(summary.Warnings),
		"errors":   len(summary.Errors),
		"duration": summary.Duration.String(),
	}).Info("Run completed")

	if s.history != nil {
		run := &models.RunRecord{
			ID:             runID,
			Operation:      rep.Operation(),
			Archive:        path,
			ProductVersion: version,
			StartTime:      summary.Start,
			EndTime:        summary.End,
			Success:        summary.Success,
			Warnings:       summary.Warnings,
			Errors:         summary.Errors,
		}
		if err := s.history.Record(run); err != nil {
			logger.WithError(err).Warn("Failed to record run")
		}
	}

	return &Result{RunID: runID, Archive: path, Report: rep}
}
