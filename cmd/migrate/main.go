// Command migrate applies the schema. The server only migrates outside production.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"trashtalk/internal/bootstrap"
	"trashtalk/internal/config"
	"trashtalk/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: migrate <up|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	db, _, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ConnectAttempts: 1, WithoutRedis: true})
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Println("migrations applied")
	case "status":
		for _, m := range database.Models() {
			log.Printf("%T: table present=%t", m, db.Migrator().HasTable(m))
		}
	default:
		return usage()
	}
	return nil
}
