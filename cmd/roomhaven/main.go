// Command roomhaven runs the RoomHaven search API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/roomhaven/roomhaven/internal/config"
	"github.com/roomhaven/roomhaven/internal/engine"
	"github.com/roomhaven/roomhaven/internal/server"
	"github.com/roomhaven/roomhaven/internal/storage"
	"github.com/roomhaven/roomhaven/internal/storage/postgres"
	"github.com/roomhaven/roomhaven/internal/storage/sqlite"
	"github.com/roomhaven/roomhaven/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	seedCount := flag.Int("seed", 0, "Insert this many demo listings at startup (development)")
	flag.Parse()

	// .env is optional; absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfigFromFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	if *seedCount > 0 {
		if err := seedDemoListings(context.Background(), store, *seedCount); err != nil {
			log.Fatalf("Failed to seed demo listings: %v", err)
		}
		log.Printf("Seeded %d demo listings", *seedCount)
	}

	// The breaker sits between the engine and the backend so a failing
	// database sheds load instead of stacking doomed queries.
	provider := storage.NewBreakerProvider(store)

	service := engine.NewSearchService(provider, engine.Options{
		KeysetPagination: cfg.Features.KeysetPagination,
		CursorSecret:     cfg.Security.CursorSecret,
		PageSize:         cfg.Search.PageSize,
		CenterRadiusKm:   cfg.Search.CenterRadiusKm,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refreshInterval, err := time.ParseDuration(cfg.Search.ScoreRefreshInterval)
	if err != nil {
		log.Printf("Invalid score refresh interval %q, using default: %v", cfg.Search.ScoreRefreshInterval, err)
		refreshInterval = 0
	}
	scoreRefresher := engine.NewScoreRefresher(store, refreshInterval)
	go func() {
		if err := scoreRefresher.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Score refresher stopped: %v", err)
		}
	}()

	addr, err := server.Start(ctx, cfg, service)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("RoomHaven search API running at http://%s (engine=%s, keyset=%v)",
		addr, cfg.Storage.StorageEngine, cfg.Features.KeysetPagination)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// listingStore is the backend surface main needs: the search provider plus
// the score refresh and ingest hooks both backends implement.
type listingStore interface {
	storage.SearchProvider
	storage.ScoreRefresher
	UpsertListing(ctx context.Context, l *types.Listing, amenities, houseRules, languages []string) error
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (listingStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewListingStore(cfg.Storage.PostgresDSN)
	default:
		return sqlite.NewListingStore(cfg.Storage.SQLitePath)
	}
}

// seedDemoListings populates the store with generated listings around a demo
// city center, then refreshes their recommended scores.
func seedDemoListings(ctx context.Context, store listingStore, n int) error {
	roomTypes := []string{types.RoomTypeEntirePlace, types.RoomTypePrivateRoom, types.RoomTypeSharedRoom}
	amenityPool := []string{"wifi", "kitchen", "heating", "washer", "air_conditioning", "workspace"}
	rulePool := []string{"no_smoking", "no_pets", "no_parties"}
	languagePool := []string{"en", "nl", "de", "fr", "es"}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()

	for i := 0; i < n; i++ {
		price := fmt.Sprintf("%.2f", 40+rng.Float64()*260)
		rating := fmt.Sprintf("%.2f", 3+rng.Float64()*2)
		l := &types.Listing{
			ID:          uuid.NewString(),
			Title:       fmt.Sprintf("Demo listing %d", i+1),
			Description: "generated demo listing",
			RoomType:    roomTypes[rng.Intn(len(roomTypes))],
			Price:       &price,
			AvgRating:   &rating,
			ReviewCount: rng.Intn(120),
			ViewCount:   rng.Intn(5000),
			Lat:         52.37 + (rng.Float64()-0.5)*0.2,
			Lng:         4.90 + (rng.Float64()-0.5)*0.3,
			CreatedAt:   now.Add(-time.Duration(rng.Intn(180*24)) * time.Hour),
		}
		if err := store.UpsertListing(ctx, l,
			pick(rng, amenityPool), pick(rng, rulePool), pick(rng, languagePool)); err != nil {
			return err
		}
	}

	_, err := store.RefreshRecommendedScores(ctx)
	return err
}

// pick returns a random non-empty prefix-sized sample of pool.
func pick(rng *rand.Rand, pool []string) []string {
	k := 1 + rng.Intn(len(pool))
	out := make([]string, 0, k)
	for _, i := range rng.Perm(len(pool))[:k] {
		out = append(out, pool[i])
	}
	return out
}
