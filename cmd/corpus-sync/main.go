package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/lexfield/regscreen/internal/database"
	"github.com/lexfield/regscreen/internal/ingest"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/pkg/config"
)

// defaultJobs covers the universal corpus families plus the sector
// registers the screening tables know about. Operators narrow the run
// with -subject/-family.
var defaultJobs = []ingest.SyncJob{
	{Subject: "data protection", Family: "data-protection"},
	{Subject: "employment", Family: "employment"},
	{Subject: "fire precautions", Family: "fire-safety"},
	{Subject: "building and buildings", Family: "construction"},
	{Subject: "food", Family: "hospitality"},
	{Subject: "public health", Family: "health-social-care"},
}

func main() {
	// Command line flags
	subject := flag.String("subject", "", "Register subject heading to sync (default: full job list)")
	family := flag.String("family", "", "Corpus family for the synced records (required with -subject)")
	docType := flag.String("type", "", "Register document type filter (e.g. ukpga, uksi)")
	year := flag.Int("year", 0, "Register year filter")
	maxPages := flag.Int("max-pages", 0, "Maximum results pages per job")
	healthOnly := flag.Bool("health", false, "Only run register health check")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	fmt.Printf("Register feed: %s\n", cfg.FeedBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if *healthOnly {
		// A health check needs no database
		service := ingest.NewService(cfg, nil, nil)
		defer service.Close()

		fmt.Println("Running register health check...")
		if err := service.Health(ctx); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		fmt.Println("✅ Health check passed! Legislation register is reachable")
		return
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Database connection established")

	repos := repository.NewRepositories(db.DB)
	service := ingest.NewService(cfg, repos.Regulation, nil)
	defer service.Close()

	jobs := defaultJobs
	if *subject != "" {
		if *family == "" {
			log.Fatal("-family is required when -subject is set")
		}
		jobs = []ingest.SyncJob{{
			Subject:  *subject,
			Family:   *family,
			DocType:  *docType,
			Year:     *year,
			MaxPages: *maxPages,
		}}
	}

	fmt.Printf("Syncing %d register job(s)...\n", len(jobs))
	startTime := time.Now()

	stats, err := service.SyncAll(ctx, jobs)
	duration := time.Since(startTime)

	fmt.Printf("\nSync finished in %v\n", duration.Round(time.Second))
	fmt.Printf("   • Pages Fetched: %d\n", stats.PagesFetched)
	fmt.Printf("   • Entries Found: %d\n", stats.EntriesFound)
	fmt.Printf("   • Records Upserted: %d\n", stats.Upserted)
	fmt.Printf("   • Entries Skipped: %d\n", stats.Skipped)
	for _, msg := range stats.Errors {
		fmt.Printf("   ⚠️  %s\n", msg)
	}

	if err != nil {
		log.Fatalf("❌ Register sync failed: %v", err)
	}
	fmt.Println("✅ Register sync completed")
}
