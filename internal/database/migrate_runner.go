package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/middleware"

	"gorm.io/gorm"
)

// migrationLockKey serializes migrations when several API instances boot at
// once against the same Postgres database.
const migrationLockKey = 0x6f72_6973 // "oris"

// SchemaMigration records one applied step. Checksum is taken over the up
// script so an edited migration is caught instead of silently skipped.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

// Checksum is the hex sha256 of the up script.
func (m *Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpScript))
	return hex.EncodeToString(sum[:])
}

// Runner applies a set of migrations to one database.
type Runner struct {
	db         *gorm.DB
	migrations []Migration
}

// NewRunner returns a Runner over ms, which must be sorted by version.
func NewRunner(db *gorm.DB, ms []Migration) *Runner {
	return &Runner{db: db, migrations: ms}
}

// Applied returns the recorded steps, oldest first. A database that never ran
// a migration has none.
func (r *Runner) Applied(ctx context.Context) ([]SchemaMigration, error) {
	applied := make([]SchemaMigration, 0)
	if !r.db.Migrator().HasTable(&SchemaMigration{}) {
		return applied, nil
	}
	if err := r.db.WithContext(ctx).Order("version ASC").Find(&applied).Error; err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	return applied, nil
}

// Pending returns the migrations not applied yet. It fails when the database
// records a version this build does not ship or a script that changed after
// it ran.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.verify(applied); err != nil {
		return nil, err
	}

	done := make(map[int]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}
	pending := make([]Migration, 0)
	for _, m := range r.migrations {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func (r *Runner) verify(applied []SchemaMigration) error {
	known := make(map[int]Migration, len(r.migrations))
	for _, m := range r.migrations {
		known[m.Version] = m
	}

	var unknown, edited []string
	for _, a := range applied {
		m, ok := known[a.Version]
		if !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", a.Version))
			continue
		}
		if a.Checksum != "" && a.Checksum != m.Checksum() {
			edited = append(edited, m.String())
		}
	}
	sort.Strings(unknown)
	switch {
	case len(unknown) > 0:
		return fmt.Errorf("schema_migrations contains unknown versions not present in code: %s (reset the development database to rebuild)",
			strings.Join(unknown, ", "))
	case len(edited) > 0:
		return fmt.Errorf("applied migrations were edited afterwards: %s (add a new migration instead)",
			strings.Join(edited, ", "))
	}
	return nil
}

// Up applies every pending migration, each in its own transaction, and
// returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return 0, fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	pending, err := r.Pending(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, m := range pending {
		applied, err := r.apply(ctx, m)
		if err != nil {
			return ran, err
		}
		if applied {
			ran++
		}
	}
	return ran, nil
}

// apply runs m unless another instance got there first while this one waited
// for the lock.
func (r *Runner) apply(ctx context.Context, m Migration) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrationLockKey).Error; err != nil {
				return fmt.Errorf("failed to take migration lock: %w", err)
			}
		}
		var existing int64
		if err := tx.Model(&SchemaMigration{}).Where("version = ?", m.Version).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		middleware.Logger.Info("Applying migration", slog.Int("version", m.Version), slog.String("name", m.Name))
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.String(), err)
		}
		if err := tx.Create(&SchemaMigration{Version: m.Version, Name: m.Name, Checksum: m.Checksum()}).Error; err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.String(), err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// Down reverts version, which must be the latest applied step.
func (r *Runner) Down(ctx context.Context, version int) error {
	var m *Migration
	for i := range r.migrations {
		if r.migrations[i].Version == version {
			m = &r.migrations[i]
		}
	}
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 || applied[len(applied)-1].Version != version {
		for _, a := range applied {
			if a.Version == version {
				return fmt.Errorf("migration %d is not the latest applied; roll back %06d first", version, applied[len(applied)-1].Version)
			}
		}
		return fmt.Errorf("migration %d has not been applied", version)
	}

	middleware.Logger.Info("Rolling back migration", slog.Int("version", version), slog.String("name", m.Name))
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("failed to run rollback SQL for migration %s: %w", m.String(), err)
		}
		res := tx.Where("version = ?", version).Delete(&SchemaMigration{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", version, res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.New("migration record vanished during rollback")
		}
		return nil
	})
}

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	ran, err := NewRunner(db, GetMigrations()).Up(ctx)
	if err != nil {
		return err
	}
	middleware.Logger.Info("SQL migrations done", slog.Int("applied", ran))
	return nil
}

// RollbackMigration reverts the embedded migration with version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewRunner(db, GetMigrations()).Down(ctx, version)
}
