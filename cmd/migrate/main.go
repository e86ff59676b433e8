package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Print pending migration SQL without executing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// this tool decides what gets applied
	cfg.Database.AutoMigrate = false

	logger.Infow("Connecting to database",
		"driver", cfg.Database.Driver,
		"host", cfg.Database.Host,
		"path", cfg.Database.Path,
	)
	db, err := database.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		logger.Fatalw("Failed to read migration state", "error", err)
	}
	if len(pending) == 0 {
		logger.Info("Schema is up to date")
		return
	}

	if *dryRun {
		logger.Info("Dry run mode - printing migration SQL without executing")
		for _, m := range pending {
			fmt.Fprintf(os.Stdout, "-- %d %s\n", m.Version, m.Name)
			for _, stmt := range m.Statements {
				fmt.Fprintf(os.Stdout, "%s;\n\n", stmt)
			}
		}
		return
	}

	logger.Infow("Running database migrations...", "pending", len(pending))
	if err := db.Migrate(ctx); err != nil {
		logger.Fatalw("Failed to apply migrations", "error", err)
	}

	fmt.Println("Migration process completed")
}
