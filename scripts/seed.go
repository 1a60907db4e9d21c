// Seed script for creating demo data in mnemos.
// Run with: go run ./scripts/seed.go
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/store"
)

func main() {
	envFile := os.Getenv("MNEMOS_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.StoragePath, logger, domain.RealClock)
	if err != nil {
		log.Fatalf("Failed to open storage at %s: %v", cfg.StoragePath, err)
	}

	now := domain.RealClock()
	seeds := []struct {
		content  string
		tags     []string
		entities []string
	}{
		{"User prefers tabs over spaces in Go files", []string{"preferences", "go"}, []string{"Go"}},
		{"The staging database lives on host db-stage-2", []string{"infra"}, []string{"Postgres"}},
		{"Deploy the api server with docker compose up -d", []string{"infra", "deploy"}, []string{"Docker"}},
		{"Project deadline moved to the end of the quarter", []string{"planning"}, nil},
		{"Nightly backups upload to the S3 archive bucket", []string{"infra", "backups"}, []string{"S3"}},
	}

	var ids []string
	for _, s := range seeds {
		m := domain.NewMemory(s.content, domain.MemoryMetadata{Tags: s.tags, Source: "seed"}, s.entities, now)
		if err := st.SaveMemory(m); err != nil {
			log.Fatalf("Failed to save memory: %v", err)
		}
		ids = append(ids, m.ID)
		log.Printf("Saved %s: %s", m.ID, s.content)
	}

	// link the infra memories so spreading activation has edges to walk
	rel := domain.NewRelation(ids[1], ids[4], "relates_to", 1.0, now)
	if err := st.CreateRelation(rel); err != nil {
		log.Fatalf("Failed to create relation: %v", err)
	}
	log.Printf("Linked %s -> %s", ids[1], ids[4])

	log.Printf("Seeded %d memories into %s", len(ids), cfg.StoragePath)
}
