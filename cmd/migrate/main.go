// Command migrate manages the oristagram database schema.
//
//	migrate up            apply pending SQL migrations
//	migrate auto          run GORM AutoMigrate (refused in production unless allowed)
//	migrate status        show applied and pending migrations and missing tables
//	migrate verify        exit non-zero unless the API could start against the database
//	migrate down VERSION  revert the latest migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/database"
	"github.com/bearkuang/oristagram/internal/middleware"

	"gorm.io/gorm"
)

type command struct {
	usage string
	run   func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"up": {"up", func(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
		return database.RunMigrations(ctx, db)
	}},
	"auto": {"auto", func(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
		cfg.DBSchemaMode = database.SchemaModeAuto
		return database.ApplySchema(ctx, db, cfg)
	}},
	"status": {"status", func(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
		_, err := report(ctx, db, cfg)
		return err
	}},
	"verify": {"verify", func(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
		status, err := report(ctx, db, cfg)
		if err != nil {
			return err
		}
		if !status.Ready() {
			return errors.New("database is not ready for the API")
		}
		return nil
	}},
	"down": {"down <version>", func(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: migrate down <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return database.RollbackMigration(ctx, db, version)
	}},
}

func report(ctx context.Context, db *gorm.DB, cfg *config.Config) (*database.SchemaStatus, error) {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return nil, err
	}
	middleware.Logger.Info("schema status",
		slog.String("mode", status.Mode),
		slog.String("env", status.Environment),
		slog.Bool("run_sql", status.WillRunSQL),
		slog.Bool("run_auto", status.WillRunAutoMigrate),
		slog.Int("applied", len(status.Applied)),
		slog.Int("pending", len(status.PendingMigrations)),
	)
	for _, m := range status.PendingMigrations {
		middleware.Logger.Info("pending migration", slog.String("migration", m.String()))
	}
	if len(status.MissingTables) > 0 {
		middleware.Logger.Warn("missing tables", slog.String("tables", strings.Join(status.MissingTables, ",")))
	}
	return status, nil
}

func usage() error {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.usage)
	}
	sort.Strings(names)
	return fmt.Errorf("usage: migrate <%s>", strings.Join(names, "|"))
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}
	name := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	cmd, ok := commands[name]
	if !ok {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := cmd.run(ctx, db, cfg, flag.Args()[1:]); err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	middleware.Logger.Info("migrate done", slog.String("command", name))
	return nil
}

func main() {
	if err := run(); err != nil {
		middleware.Logger.Error(err.Error())
		os.Exit(1)
	}
}
