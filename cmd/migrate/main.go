// Command migrate creates the development schema of the stored feature
// source. The map service itself only reads these tables.
package main

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/samirrijal/geofield/internal/adapters/postgres"
	"github.com/samirrijal/geofield/internal/pkg/config"
	"github.com/samirrijal/geofield/internal/pkg/logging"
)

//go:embed sql/*.sql
var migrations embed.FS

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down>")
		os.Exit(2)
	}

	cfg, err := config.Load("geofield-migrate")
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "geofield-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 1)
	if err != nil {
		logger.Error("db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		err = up(ctx, db, logger)
	case "down":
		err = apply(ctx, db, "sql/down.sql")
	default:
		err = fmt.Errorf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "direction", os.Args[1])
}

func up(ctx context.Context, db *postgres.DB, logger *slog.Logger) error {
	entries, err := migrations.ReadDir("sql")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if name := e.Name(); name != "down.sql" && strings.HasSuffix(name, ".sql") {
			files = append(files, path.Join("sql", name))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		if err := apply(ctx, db, f); err != nil {
			return err
		}
		logger.Info("applied", "file", f)
	}
	return nil
}

func apply(ctx context.Context, db *postgres.DB, file string) error {
	data, err := migrations.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("exec %s: %w", file, err)
	}
	return nil
}
