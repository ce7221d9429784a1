package main

import (
	"context"
	"log"
	"os"

	"github.com/wyhuang/scholarship-engine/internal/api"
	"github.com/wyhuang/scholarship-engine/internal/catalog"
	"github.com/wyhuang/scholarship-engine/internal/db"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	cat, err := catalog.Load(os.Getenv("SCHOLARSHIP_CATALOG"))
	if err != nil {
		log.Fatalf("Failed to load scholarship catalog: %v", err)
	}
	types, fields, docs, rules, err := cat.Types()
	if err != nil {
		log.Fatalf("Invalid scholarship catalog: %v", err)
	}

	store := db.NewStore(pool)
	if err := store.SyncCatalog(ctx, types, fields, docs, rules); err != nil {
		log.Fatalf("Catalog sync failed: %v", err)
	}
	log.Printf("Catalog synced: %d scholarship types, %d fields, %d documents, %d rules",
		len(types), len(fields), len(docs), len(rules))

	srv := api.NewServer(pool)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
