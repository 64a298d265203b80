// Package bootstrap wires the process-level dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bearkuang/oristagram/internal/cache"
	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/database"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedPreset names a seed preset applied to an empty development database.
	SeedPreset string
}

// InitRuntime connects to DB and Redis, prepares the media directory and
// optionally seeds demo data.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	// Connect DB
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if cfg.MediaUploadDir != "" {
		if err := os.MkdirAll(cfg.MediaUploadDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create media dir: %w", err)
		}
	}

	if opts.SeedPreset != "" {
		if err := seedEmptyDevDatabase(cfg, db, opts.SeedPreset); err != nil {
			return nil, nil, fmt.Errorf("failed to seed preset %q: %w", opts.SeedPreset, err)
		}
	}

	return db, r, nil
}

// seedEmptyDevDatabase applies preset only in development and only when no user exists yet.
func seedEmptyDevDatabase(cfg *config.Config, db *gorm.DB, preset string) error {
	if !strings.EqualFold(cfg.Env, "development") {
		middleware.Logger.Warn("seed preset ignored outside development", slog.String("env", cfg.Env))
		return nil
	}

	var users int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}

	middleware.Logger.Info("seeding empty development database", slog.String("preset", preset))
	return seed.NewSeeder(db, seed.Options{}).ApplyPreset(context.Background(), preset)
}
