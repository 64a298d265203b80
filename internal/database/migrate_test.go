package database

import (
	"context"
	"testing"

	"github.com/bearkuang/oristagram/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// chatMigrations is a small SQLite-compatible history.
func chatMigrations() []Migration {
	return []Migration{
		{
			Version:    1,
			Name:       "chat_rooms",
			UpScript:   "CREATE TABLE chat_rooms (id INTEGER PRIMARY KEY, created_at DATETIME)",
			DownScript: "DROP TABLE chat_rooms",
		},
		{
			Version:    2,
			Name:       "messages",
			UpScript:   "CREATE TABLE messages (id INTEGER PRIMARY KEY, chat_room_id INTEGER NOT NULL, content TEXT NOT NULL)",
			DownScript: "DROP TABLE messages",
		},
	}
}

func TestGetMigrations_OrderedAndPaired(t *testing.T) {
	ms := GetMigrations()
	require.NotEmpty(t, ms)
	for i, m := range ms {
		assert.NotEmpty(t, m.UpScript, m.String())
		assert.NotEmpty(t, m.DownScript, m.String())
		if i > 0 {
			assert.Greater(t, m.Version, ms[i-1].Version)
		}
	}
	assert.Equal(t, "init_schema", ms[0].Name)
	assert.NotNil(t, GetMigrationByVersion(1))
	assert.Nil(t, GetMigrationByVersion(999999))
}

func TestInitSchemaCreatesEveryRequiredTable(t *testing.T) {
	up := GetMigrationByVersion(1).UpScript
	for _, table := range RequiredTables(newSQLite(t)) {
		assert.Contains(t, up, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		env     string
		runSQL  bool
		runAuto bool
		wantErr bool
	}{
		{"hybrid dev", "", "development", true, true, false},
		{"hybrid prod", "hybrid", "production", true, false, false},
		{"hybrid staging", " HYBRID ", "stage", true, false, false},
		{"sql", "sql", "development", true, false, false},
		{"auto dev", "auto", "development", false, true, false},
		{"auto prod refused", "auto", "production", false, false, true},
		{"unknown", "magic", "development", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planSchema(&config.Config{DBSchemaMode: tt.mode, Env: tt.env})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, plan.runSQL)
			assert.Equal(t, tt.runAuto, plan.runAuto)
		})
	}

	plan, err := planSchema(&config.Config{DBSchemaMode: "auto", Env: "production", DBAutoMigrateAllowDestructive: true})
	require.NoError(t, err)
	assert.True(t, plan.runAuto)
}

func TestRunner_UpIsIdempotent(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	runner := NewRunner(db, chatMigrations())

	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied, "a fresh database has no history")

	ran, err := runner.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)
	assert.True(t, db.Migrator().HasTable("messages"))

	ran, err = runner.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)

	applied, err = runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "messages", applied[1].Name)
	assert.Len(t, applied[1].Checksum, 64)
}

func TestRunner_RejectsEditedOrUnknownHistory(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	_, err := NewRunner(db, chatMigrations()).Up(ctx)
	require.NoError(t, err)

	edited := chatMigrations()
	edited[1].UpScript += " -- add read_at later"
	_, err = NewRunner(db, edited).Pending(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000002_messages")

	_, err = NewRunner(db, chatMigrations()[:1]).Pending(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000002")
}

func TestRunner_DownOnlyLatest(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	runner := NewRunner(db, chatMigrations())
	_, err := runner.Up(ctx)
	require.NoError(t, err)

	err = runner.Down(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roll back 000002 first")

	require.NoError(t, runner.Down(ctx, 2))
	assert.False(t, db.Migrator().HasTable("messages"))
	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)

	assert.EqualError(t, runner.Down(ctx, 2), "migration 2 has not been applied")
	assert.EqualError(t, runner.Down(ctx, 7), "migration version 7 not found")
}

func TestMissingTables(t *testing.T) {
	db := newSQLite(t)
	required := RequiredTables(db)
	assert.Subset(t, required, []string{"users", "posts", "reels", "media", "messages", "chat_room_participants", "post_mentions"})
	assert.ElementsMatch(t, required, MissingTables(db))

	require.NoError(t, db.AutoMigrate(PersistentModels()...))
	assert.Empty(t, MissingTables(db))
}

func TestApplySchema_AutoOnSQLite(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	cfg := &config.Config{DBSchemaMode: SchemaModeAuto, Env: "development"}

	status, err := GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.False(t, status.Ready())
	assert.Contains(t, status.MissingTables, "chat_rooms")

	require.NoError(t, ApplySchema(ctx, db, cfg))

	status, err = GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.True(t, status.Ready())
	assert.False(t, status.WillRunSQL)
}
