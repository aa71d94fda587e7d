package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lexfield/regscreen/internal/database"
	"github.com/lexfield/regscreen/internal/services"
	"github.com/lexfield/regscreen/pkg/config"
)

func main() {
	fmt.Println("🎯 Regulatory Applicability Screening Pipeline")
	fmt.Println("==============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	// Create the screening services and pipeline
	svcs, err := services.NewServices(db.DB, cfg)
	if err != nil {
		log.Fatal("Failed to create services:", err)
	}
	pipeline := svcs.Pipeline

	pipelineConfig := services.PipelineConfigFromApp(cfg)

	fmt.Printf("📋 Pipeline Configuration:\n")
	fmt.Printf("   • Batch Size: %d organizations\n", pipelineConfig.BatchSize)
	fmt.Printf("   • Interval: %v\n", pipelineConfig.Interval)
	fmt.Printf("   • Max Concurrent: %d operations\n", pipelineConfig.MaxConcurrent)
	fmt.Printf("   • Rescreen After: %v\n", pipelineConfig.StaleAfter)

	// Check if this is a one-time run
	if len(os.Args) > 1 && os.Args[1] == "--once" {
		fmt.Println("\n🔄 Running one-time screening cycle...")
		stats, err := pipeline.RunOnce(pipelineConfig)
		if err != nil {
			log.Fatalf("❌ One-time screening failed: %v", err)
		}

		fmt.Printf("\n✅ One-time screening completed!\n")
		fmt.Printf("   • Duration: %v\n", stats.Duration.Round(time.Second))
		fmt.Printf("   • Organizations Found: %d\n", stats.OrganizationsFound)
		fmt.Printf("   • Organizations Processed: %d\n", stats.OrganizationsProcessed)
		fmt.Printf("   • Organizations Succeeded: %d\n", stats.OrganizationsSucceeded)
		fmt.Printf("   • Organizations Skipped: %d\n", stats.OrganizationsSkipped)
		fmt.Printf("   • Organizations Failed: %d\n", stats.OrganizationsFailed)
		fmt.Printf("   • Matches Written: %d\n", stats.MatchesWritten)
		return
	}

	// Start the automated pipeline
	if err := pipeline.Start(pipelineConfig); err != nil {
		log.Fatalf("❌ Failed to start pipeline: %v", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("\n🚀 Automated screening pipeline is running...")
	fmt.Println("Press Ctrl+C to stop gracefully")

	// Wait for shutdown signal
	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received, stopping pipeline...")

	// Stop the pipeline gracefully
	if err := pipeline.Stop(); err != nil {
		log.Printf("❌ Error stopping pipeline: %v", err)
	} else {
		fmt.Println("✅ Pipeline stopped successfully")
	}
}
