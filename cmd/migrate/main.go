package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/fitdiary/internal/config"
	"github.com/fdg312/fitdiary/internal/dbmigrate"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: go run ./cmd/migrate [up|status|down]")
	}

	command := os.Args[1]
	switch command {
	case "up", "status", "down":
	default:
		log.Fatalf("unsupported command %q (allowed: up, status, down)", command)
	}

	cfg := config.Load()
	target, err := dbmigrate.SelectDatabaseURL(cfg, false)
	if err != nil {
		log.Fatal(err)
	}

	if target.Warning != "" {
		log.Printf("WARN migrate: %s", target.Warning)
	}
	log.Printf("migrate: command=%s using=%s", command, target.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := dbmigrate.Run(ctx, command, target.URL); err != nil {
		log.Fatal(err)
	}

	log.Printf("migrate: %s completed successfully", command)
}
