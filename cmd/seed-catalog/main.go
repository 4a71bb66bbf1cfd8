package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/fitdiary/internal/blob"
	"github.com/fdg312/fitdiary/internal/catalog"
	"github.com/fdg312/fitdiary/internal/config"
	"github.com/fdg312/fitdiary/internal/storage/postgres"
)

func main() {
	var (
		file    = flag.String("file", "", "local seed JSON (default: fetch CATALOG_SEED_KEY from the blob store)")
		key     = flag.String("key", "", "object key (default: CATALOG_SEED_KEY)")
		upload  = flag.Bool("upload", false, "upload -file to the blob store before importing")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Parse()

	cfg := config.Load()
	if *key == "" {
		*key = cfg.CatalogSeedKey
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("FATAL seed-catalog: DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL seed-catalog: %v", err)
	}
	defer pg.Close()

	svc := catalog.NewService(pg.GetCatalogStorage())

	var seed *catalog.Seed
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("FATAL seed-catalog: read %s: %v", *file, err)
		}
		seed, err = svc.ParseSeed(data)
		if err != nil {
			log.Fatalf("FATAL seed-catalog: %v", err)
		}

		if *upload {
			store := mustBlobStore(ctx, cfg)
			n, err := store.PutObject(ctx, *key, data, "application/json")
			if err != nil {
				log.Fatalf("FATAL seed-catalog: upload: %v", err)
			}
			log.Printf("seed-catalog: uploaded %s (%d bytes)", *key, n)
		}
	} else {
		store := mustBlobStore(ctx, cfg)
		seed, err = svc.FetchSeed(ctx, store, *key)
		if err != nil {
			log.Fatalf("FATAL seed-catalog: %v", err)
		}
	}

	res, err := svc.Import(ctx, seed)
	if err != nil {
		log.Fatalf("FATAL seed-catalog: import: %v", err)
	}
	log.Printf("seed-catalog: imported foods=%d exercises=%d", res.Foods, res.Exercises)
}

func mustBlobStore(ctx context.Context, cfg *config.Config) blob.Store {
	store, _, err := blob.NewBlobStore(ctx, cfg.Blob, log.Default())
	if err != nil {
		log.Fatalf("FATAL seed-catalog: %v", err)
	}
	if store == nil {
		log.Fatal("FATAL seed-catalog: blob store is not configured (set BLOB_MODE=s3 or auto and S3_* env)")
	}
	return store
}
