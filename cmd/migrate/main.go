// Command migrate manages the users and posts schema.
//
//	migrate up            apply the embedded SQL migrations
//	migrate auto          let gorm create the users and posts tables
//	migrate status        list applied and pending migrations
//	migrate down VERSION  run the down script of one migration
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"gorm.io/gorm"

	"feedhub/internal/config"
	"feedhub/internal/database"
)

type command struct {
	help string
	run  func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"up":     {"apply pending feedhub SQL migrations", migrateUp},
	"auto":   {"create the users and posts tables from the gorm models", migrateAuto},
	"status": {"print applied and pending migrations", migrateStatus},
	"down":   {"roll back one migration: down <version>", migrateDown},
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("feedhub migrate: load config: %v", err)
	}
	// Schema is left untouched on connect; this command owns it.
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		log.Fatalf("feedhub migrate: connect %s: %v", cfg.DBDriver, err)
	}

	if err := cmd.run(context.Background(), db, cfg, flag.Args()[1:]); err != nil {
		log.Fatalf("feedhub migrate %s: %v", flag.Arg(0), err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: migrate <command> [args]")
	for _, name := range []string{"up", "auto", "status", "down"} {
		fmt.Fprintf(os.Stderr, "  %-7s %s\n", name, commands[name].help)
	}
}

func migrateUp(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	pending, err := database.PendingMigrations(ctx, db)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		return err
	}
	log.Printf("applied %d migration(s)", len(pending))
	return nil
}

func migrateAuto(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	if err := db.WithContext(ctx).AutoMigrate(database.PersistentModels()...); err != nil {
		return err
	}
	log.Println("users and posts tables are in sync with the models")
	return nil
}

func migrateStatus(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	applied, err := database.AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	pending, err := database.PendingMigrations(ctx, db)
	if err != nil {
		return err
	}
	log.Printf("driver=%s env=%s applied=%v pending=%d", cfg.DBDriver, cfg.Env, applied, len(pending))
	for _, m := range pending {
		log.Printf("  pending %s", m.String())
	}
	return nil
}

func migrateDown(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected a single version, e.g. migrate down 1")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("version %q is not a number", args[0])
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return err
	}
	log.Printf("rolled back %06d", version)
	return nil
}
