// Package history records pipeline runs and their per-target outcomes in a
// SQL database (SQLite by default, PostgreSQL optionally).
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists runs.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid history configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Begin inserts a run in the running state.
func (s *Store) Begin(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Result = ResultRunning
	return s.db.WithContext(ctx).Create(run).Error
}

// Finish stores the final state of run together with its target outcomes.
func (s *Store) Finish(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", run.ID).Delete(&TargetOutcome{}).Error; err != nil {
			return err
		}
		for i := range run.Targets {
			run.Targets[i].ID = 0
			run.Targets[i].RunID = run.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(run).Error
	})
}

// Filter narrows List.
type Filter struct {
	Action  string
	Network string
	Limit   int
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	q := s.db.WithContext(ctx).Preload("Targets").Order("started_at DESC")
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Network != "" {
		q = q.Where("network = ?", f.Network)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).Preload("Targets").Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LastSuccess returns the most recent successful run of action for network.
func (s *Store) LastSuccess(ctx context.Context, action, network string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Where("action = ? AND network = ? AND result = ?", action, network, ResultSuccess).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Prune deletes runs started before cutoff and returns how many it removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Run{}).Where("started_at < ?", cutoff).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id IN ?", ids).Delete(&TargetOutcome{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&Run{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
