package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	repopg "github.com/tendant/simple-moderation/pkg/moderation/repo/postgres"
)

const usage = `Simple Moderation Migrations

Applies the embedded schema migrations to a PostgreSQL database.

USAGE:
  migrate <command> [version]

COMMANDS:
  up              Apply all pending migrations
  down            Roll back all migrations
  steps <n>       Apply (n > 0) or roll back (n < 0) n migrations
  goto <version>  Migrate up or down to version
  force <version> Set the version without running migrations
  version         Print the current version

ENVIRONMENT VARIABLES:
  DATABASE_URL    PostgreSQL connection string (required)
                  Append ?search_path=<schema> to target a schema

  Configuration can be loaded from a .env file in the current directory.
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage + "\n")
		os.Exit(0)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	m, err := repopg.NewMigrate(dbURL)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(intArg())
	case "goto":
		err = m.Migrate(uint(intArg()))
	case "force":
		err = m.Force(intArg())
	case "version":
		printVersion(m)
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No change")
		return
	}
	if err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	printVersion(m)
}

func intArg() int {
	if len(os.Args) < 3 {
		log.Fatalf("%s requires a numeric argument", os.Args[1])
	}
	n, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatalf("Invalid number %q: %v", os.Args[2], err)
	}
	return n
}

func printVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("Version: none")
		return
	}
	if err != nil {
		log.Fatalf("Failed to read version: %v", err)
	}
	fmt.Printf("Version: %d (dirty: %t)\n", version, dirty)
}
