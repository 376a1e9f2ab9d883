package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"duox/internal/config"
	"duox/internal/database"
	"duox/internal/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log := logger.Component("migrate")

	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")
	if command == "create" {
		if len(os.Args) < 3 {
			logger.Fatal("usage: migrate create <migration_name>")
		}
		createMigration(migrationsPath, os.Args[2])
		return
	}

	db, err := sql.Open("pgx", config.LoadDatabase().DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info("running migrations", "path", migrationsPath)
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			logger.Fatal("migration failed", "error", err)
		}
		log.Info("migrations completed")

	case "down":
		log.Info("rolling back last migration")
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			logger.Fatal("rollback failed", "error", err)
		}
		log.Info("rollback completed")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, migrationsPath)
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		if dirty {
			log.Warn("schema is dirty, needs manual intervention", "version", version)
		} else {
			log.Info("current version", "version", version)
		}

	default:
		log.Error("unknown command", "command", command)
		printUsage()
		os.Exit(1)
	}
}

func createMigration(dir, name string) {
	log := logger.Component("migrate")

	files, err := os.ReadDir(dir)
	if err != nil {
		logger.Fatal("failed to read migrations directory", "error", err)
	}

	nextVersion := 1
	for _, file := range files {
		if !file.IsDir() {
			nextVersion++
		}
	}
	nextVersion = (nextVersion / 2) + 1 // Each migration has up and down files

	upFile := fmt.Sprintf("%s/%06d_%s.up.sql", dir, nextVersion, name)
	downFile := fmt.Sprintf("%s/%06d_%s.down.sql", dir, nextVersion, name)

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n-- Add your SQL here\n", name, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		logger.Fatal("failed to create up migration", "error", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n-- Add your rollback SQL here\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		logger.Fatal("failed to create down migration", "error", err)
	}

	log.Info("created migration files", "up", upFile, "down", downFile)
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BLUEPRINT_DB_HOST       Database host (default: localhost)")
	fmt.Println("  BLUEPRINT_DB_PORT       Database port (default: 5432)")
	fmt.Println("  BLUEPRINT_DB_DATABASE   Database name (default: crashdb)")
	fmt.Println("  BLUEPRINT_DB_USERNAME   Database user (default: postgres)")
	fmt.Println("  BLUEPRINT_DB_PASSWORD   Database password (default: postgres)")
	fmt.Println("  BLUEPRINT_DB_SCHEMA     Database schema (default: public)")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: ./migrations)")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
