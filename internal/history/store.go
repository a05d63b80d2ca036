// Package history keeps an optional sqlite log of downsampling runs, so a
// voxel size or seed that produced a good cloud can be looked up later.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/voxeldown/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunRecord describes one completed run.
type RunRecord struct {
	ID             string
	InputPath      string
	OutputPath     string
	VoxelSize      float64
	Seed           uint64
	SeedFixed      bool
	BucketOrder    string
	InputPoints    int
	OutputPoints   int
	OccupiedVoxels int
	StartedAt      time.Time
	Duration       time.Duration
}

// NewRunRecord starts a record with a fresh run ID and the current time.
func NewRunRecord(inputPath, outputPath string) RunRecord {
	return RunRecord{
		ID:         uuid.NewString(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		StartedAt:  time.Now(),
	}
}

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and brings
// its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure history database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	m, err := newMigrate(s.db)
	if err != nil {
		return 0, err
	}
	// Not closing m: that would close the shared *sql.DB.
	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	return version, err
}

// Record stores r.
func (s *Store) Record(ctx context.Context, r RunRecord) error {
	if r.ID == "" {
		return errors.New("run record has no ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downsample_runs (
			run_id, input_path, output_path, voxel_size, random_seed, seed_fixed,
			bucket_order, input_points, output_points, occupied_voxels,
			started_unix_nanos, duration_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InputPath, r.OutputPath, r.VoxelSize,
		strconv.FormatUint(r.Seed, 10), r.SeedFixed, r.BucketOrder,
		r.InputPoints, r.OutputPoints, r.OccupiedVoxels,
		r.StartedAt.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, input_path, output_path, voxel_size, random_seed, seed_fixed,
			bucket_order, input_points, output_points, occupied_voxels,
			started_unix_nanos, duration_nanos
		FROM downsample_runs
		ORDER BY started_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			seed       string
			startedNs  int64
			durationNs int64
		)
		if err := rows.Scan(
			&r.ID, &r.InputPath, &r.OutputPath, &r.VoxelSize, &seed, &r.SeedFixed,
			&r.BucketOrder, &r.InputPoints, &r.OutputPoints, &r.OccupiedVoxels,
			&startedNs, &durationNs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("run %s has invalid seed %q: %w", r.ID, seed, err)
		}
		r.StartedAt = time.Unix(0, startedNs)
		r.Duration = time.Duration(durationNs)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func migrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// newMigrate builds a migrate instance over the embedded migrations.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger on top of monitoring.Diagf.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Diagf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return monitoring.Verbose()
}
