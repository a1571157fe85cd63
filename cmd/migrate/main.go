// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "", "Database type: sqlite, postgres (defaults to ALERT_STORE)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	driver := *dbType
	if driver == "" {
		driver = cfg.Store.Driver
	}

	var databaseURL string
	switch driver {
	case storage.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o750); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
		databaseURL = storage.SQLiteMigrationURL(cfg.Store.SQLitePath)
	case storage.DriverPostgres:
		databaseURL = cfg.Store.Postgres.URL()
	default:
		log.Fatalf("Unknown database type: %s", driver)
	}

	if err := run(driver, databaseURL, *action); err != nil {
		log.Fatalf("%s migration failed: %v", driver, err)
	}
}

func run(driver, databaseURL, action string) error {
	switch action {
	case "up":
		log.Printf("Running %s migrations...", driver)
		if err := storage.RunMigrations(driver, databaseURL); err != nil {
			return err
		}
		log.Printf("%s migrations completed successfully", driver)

	case "down":
		log.Printf("Rolling back %s migration...", driver)
		if err := storage.RollbackMigrations(driver, databaseURL); err != nil {
			return err
		}
		log.Printf("%s migration rolled back successfully", driver)

	case "version":
		version, dirty, err := storage.MigrationVersion(driver, databaseURL)
		if err != nil {
			return err
		}
		log.Printf("Current %s migration version: %d (dirty: %v)", driver, version, dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
