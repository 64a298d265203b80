package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/middleware"

	"gorm.io/gorm"
)

const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// joinTables back the many2many relations. AutoMigrate creates them from the
// model tags, the SQL migrations spell them out.
var joinTables = []string{
	"post_tags",
	"reel_tags",
	"post_mentions",
	"reel_mentions",
	"chat_room_participants",
}

// RequiredTables lists every table the API reads or writes.
func RequiredTables(db *gorm.DB) []string {
	tables := make([]string, 0, len(PersistentModels())+len(joinTables))
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err == nil {
			tables = append(tables, stmt.Schema.Table)
		}
	}
	return append(tables, joinTables...)
}

// MissingTables returns the required tables absent from db.
func MissingTables(db *gorm.DB) []string {
	missing := make([]string, 0)
	for _, table := range RequiredTables(db) {
		if !db.Migrator().HasTable(table) {
			missing = append(missing, table)
		}
	}
	return missing
}

// SchemaStatus reports what ApplySchema would do for a config and what the
// database is still missing.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	Applied            []SchemaMigration
	PendingMigrations  []Migration
	MissingTables      []string
}

// Ready reports whether the API can serve against this database as is.
func (s *SchemaStatus) Ready() bool {
	return len(s.PendingMigrations) == 0 && len(s.MissingTables) == 0
}

// schemaPlan is DB_SCHEMA_MODE resolved against APP_ENV.
type schemaPlan struct {
	mode    string
	runSQL  bool
	runAuto bool
}

func isProdLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// planSchema: sql runs the embedded migrations only; auto runs GORM
// AutoMigrate only and needs DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE in production;
// hybrid (default) runs the migrations everywhere and AutoMigrate outside
// production.
func planSchema(cfg *config.Config) (schemaPlan, error) {
	plan := schemaPlan{mode: strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))}
	if plan.mode == "" {
		plan.mode = SchemaModeHybrid
	}
	prodLike := isProdLikeEnv(cfg.Env)

	switch plan.mode {
	case SchemaModeSQL:
		plan.runSQL = true
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.runAuto = true
	case SchemaModeHybrid:
		plan.runSQL = true
		plan.runAuto = !prodLike
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.mode)
	}
	return plan, nil
}

// ApplySchema brings db up to date according to DB_SCHEMA_MODE and fails if
// any required table is still missing afterwards.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if plan.runAuto {
		if plan.mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
			middleware.Logger.Warn("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true set for DB_SCHEMA_MODE=auto; review schema diffs before production deployment")
		}
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", plan.mode), slog.String("env", cfg.Env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	if missing := MissingTables(db); len(missing) > 0 {
		return fmt.Errorf("schema incomplete, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetSchemaStatus inspects db without changing it.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.runSQL,
		WillRunAutoMigrate: plan.runAuto,
		MissingTables:      MissingTables(db),
	}
	if !plan.runSQL {
		return status, nil
	}

	runner := NewRunner(db, GetMigrations())
	if status.Applied, err = runner.Applied(ctx); err != nil {
		return nil, err
	}
	if status.PendingMigrations, err = runner.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
