package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-commerce-assembly/internal/assembler"
	"github.com/tendant/simple-commerce-assembly/internal/handlers"
	"github.com/tendant/simple-commerce-assembly/internal/metrics"
	"github.com/tendant/simple-commerce-assembly/internal/notify"
	"github.com/tendant/simple-commerce-assembly/internal/products"
	"github.com/tendant/simple-commerce-assembly/internal/queue"
	"github.com/tendant/simple-commerce-assembly/internal/staging"
	"github.com/tendant/simple-commerce-assembly/internal/sweeper"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	// Configuration from environment
	httpAddr := os.Getenv("ASSEMBLY_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}
	ttl := envDuration("STAGING_TTL", staging.DefaultTTL)
	sweepInterval := envDuration("SWEEP_INTERVAL", 5*time.Minute)
	concurrency := envInt("CONSUMER_CONCURRENCY", 4)

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := notify.NewRegistry()
	notifier := notify.NewNotifier(registry, m)

	// Use Postgres if DATABASE_URL is set, otherwise run fully embedded
	var (
		stagingRepo  staging.Repository
		productRepo  products.Repository
		captionSrc   queue.Source
		thumbnailSrc queue.Source
		cleanup      func()
	)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		log.Printf("Using Postgres at: %s", dbURL)

		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		cleanup = func() { db.Close() }

		stagingRepo, err = staging.NewPostgresRepository(db, ttl)
		if err != nil {
			log.Fatalf("Failed to initialize staging repository: %v", err)
		}
		productRepo, err = products.NewPostgresRepository(db)
		if err != nil {
			log.Fatalf("Failed to initialize product repository: %v", err)
		}
		captionSrc, err = queue.NewPostgresSource(db, queue.SourceConfig{Queue: queue.QueueCaptionParsed})
		if err != nil {
			log.Fatalf("Failed to initialize caption queue: %v", err)
		}
		thumbnailSrc, err = queue.NewPostgresSource(db, queue.SourceConfig{Queue: queue.QueueThumbnailGenerated})
		if err != nil {
			log.Fatalf("Failed to initialize thumbnail queue: %v", err)
		}
	} else {
		log.Printf("Using embedded in-memory repositories (development mode)")

		broker := queue.NewMemoryBroker(0)
		stagingRepo = staging.NewMemoryRepository(ttl)
		productRepo = products.NewMemoryRepository()
		captionSrc = broker.Source(queue.SourceConfig{Queue: queue.QueueCaptionParsed})
		thumbnailSrc = broker.Source(queue.SourceConfig{Queue: queue.QueueThumbnailGenerated})
		cleanup = func() {}
	}
	defer cleanup()

	processor := assembler.NewProcessor(stagingRepo, productRepo, notifier, m)

	captionConsumer := queue.NewConsumer(captionSrc, processor, m, queue.ConsumerConfig{
		Name:        "caption-parsed",
		Concurrency: concurrency,
	})
	thumbnailConsumer := queue.NewConsumer(thumbnailSrc, processor, m, queue.ConsumerConfig{
		Name:        "thumbnail-generated",
		Concurrency: concurrency,
	})

	sw := sweeper.New(stagingRepo, m, sweeper.Config{Interval: sweepInterval})

	log.Printf("✓ Assembly worker initialized")
	log.Printf("  Staging TTL: %s", ttl)
	log.Printf("  Sweep interval: %s", sweepInterval)
	log.Printf("  Consumer concurrency: %d", concurrency)

	// Create HTTP server for health and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sw.Start(ctx); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return captionConsumer.Run(ctx) })
	g.Go(func() error { return thumbnailConsumer.Run(ctx) })

	go func() {
		log.Printf("Assembly worker starting on %s", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt: consumers drain in-flight messages first
	<-ctx.Done()
	log.Println("Shutting down...")

	if err := g.Wait(); err != nil {
		log.Printf("Consumer shutdown error: %v", err)
	}
	sw.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Assembly worker stopped")
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return d
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return n
}
