package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tendant/simple-commerce-assembly/internal/metrics"
	"github.com/tendant/simple-commerce-assembly/internal/staging"
)

// Config holds sweeper settings
type Config struct {
	// Interval between sweeps. Optional. Defaults to 5m.
	Interval time.Duration
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
}

// Sweeper periodically purges staging records that never reached
// completion within the TTL window. Each orphan surfaces an upstream
// worker that went silent; no product is ever created from one.
type Sweeper struct {
	staging staging.Repository
	metrics *metrics.Metrics
	cfg     Config
	cron    *cron.Cron
}

// New creates a sweeper over the staging repository
func New(stagingRepo staging.Repository, m *metrics.Metrics, cfg Config) *Sweeper {
	cfg.WithDefaults()
	return &Sweeper{
		staging: stagingRepo,
		metrics: m,
		cfg:     cfg,
	}
}

// Start schedules periodic sweeps until Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	// A sweep firing during shutdown still runs to completion even after
	// the signal context is canceled
	sweepCtx := context.WithoutCancel(ctx)
	_, err := s.cron.AddFunc("@every "+s.cfg.Interval.String(), func() {
		s.Sweep(sweepCtx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("✓ Expiry sweeper running every %s", s.cfg.Interval)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep purges expired incomplete records once and reports how many
// were removed
func (s *Sweeper) Sweep(ctx context.Context) int {
	orphans, err := s.staging.SweepExpired(ctx, time.Now())
	if err != nil {
		log.Printf("Sweep failed: %v", err)
		return 0
	}

	for _, rec := range orphans {
		missing := rec.MissingFacet()
		log.Printf("Orphaned assembly purged: key=%s missing=%s staged_at=%s", rec.Key, missing, rec.CreatedAt.Format(time.RFC3339))
		s.metrics.OrphanedAssemblies.WithLabelValues(missing).Inc()
	}
	return len(orphans)
}
