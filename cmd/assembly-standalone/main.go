package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
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

// Standalone assembly engine for quick testing: consumers, sweeper,
// query API and realtime push all in one process. Defaults to embedded
// in-memory repositories; set DATABASE_URL for Postgres.
func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	httpAddr := os.Getenv("ASSEMBLY_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	ttl := envDuration("STAGING_TTL", staging.DefaultTTL)
	sweepInterval := envDuration("SWEEP_INTERVAL", 5*time.Minute)

	log.Printf("Assembly Standalone")
	log.Printf("  HTTP address: %s", httpAddr)
	log.Printf("  Staging TTL: %s", ttl)

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := notify.NewRegistry()
	notifier := notify.NewNotifier(registry, m)

	var (
		stagingRepo  staging.Repository
		productRepo  products.Repository
		captionSrc   queue.Source
		thumbnailSrc queue.Source
		cleanup      func()
	)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		log.Printf("  Mode: Postgres")

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
		log.Printf("  Mode: Embedded (in-memory repositories + in-memory queues)")

		broker := queue.NewMemoryBroker(0)
		stagingRepo = staging.NewMemoryRepository(ttl)
		productRepo = products.NewMemoryRepository()
		captionSrc = broker.Source(queue.SourceConfig{Queue: queue.QueueCaptionParsed})
		thumbnailSrc = broker.Source(queue.SourceConfig{Queue: queue.QueueThumbnailGenerated})
		cleanup = func() {}
	}
	defer cleanup()

	processor := assembler.NewProcessor(stagingRepo, productRepo, notifier, m)

	captionConsumer := queue.NewConsumer(captionSrc, processor, m, queue.ConsumerConfig{Name: "caption-parsed"})
	thumbnailConsumer := queue.NewConsumer(thumbnailSrc, processor, m, queue.ConsumerConfig{Name: "thumbnail-generated"})
	sw := sweeper.New(stagingRepo, m, sweeper.Config{Interval: sweepInterval})

	productHandler := handlers.NewProductHandler(productRepo)
	wsHandler := handlers.NewWSHandler(registry)

	r := chi.NewRouter()
	r.Get("/health", handlers.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/ws", wsHandler.HandleWS)
	r.Route("/v1/owners/{ownerID}/products", func(r chi.Router) {
		r.Get("/", productHandler.HandleList)
		r.Get("/{contentID}", productHandler.HandleGet)
	})

	server := &http.Server{
		Addr:    httpAddr,
		Handler: r,
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
		log.Printf("✓ Assembly engine ready on %s", httpAddr)
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET /health                                    - Health check")
		log.Printf("  GET /metrics                                   - Prometheus metrics")
		log.Printf("  GET /v1/owners/{ownerID}/products              - List assembled products")
		log.Printf("  GET /v1/owners/{ownerID}/products/{contentID}  - Get one product")
		log.Printf("  GET /v1/ws                                     - Realtime notifications")
		log.Printf("")
		log.Printf("Publish a sample event pair:")
		log.Printf("  go run ./examples/publish-events")
		log.Printf("")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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

	log.Println("Assembly engine stopped")
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
