package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// DefaultMaintenanceInterval is the period of the retention sweep after startup
const DefaultMaintenanceInterval = 24 * time.Hour

// MaintenanceRunner periodically reaps expired mappings. The startup sweep
// is run by the store itself when it opens.
type MaintenanceRunner struct {
	mappings repo.MappingRepo

	interval time.Duration
	running  bool
	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// NewMaintenanceRunner creates a new maintenance runner
func NewMaintenanceRunner(mappings repo.MappingRepo, interval time.Duration, log zerolog.Logger) *MaintenanceRunner {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &MaintenanceRunner{
		mappings: mappings,
		interval: interval,
		stopCh:   make(chan struct{}),
		log:      log.With().Str("component", "maintenance").Logger(),
	}
}

// Start starts the runner
func (r *MaintenanceRunner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.wg.Add(1)
	go r.loop()
	r.log.Info().Dur("interval", r.interval).Msg("Maintenance runner started")
}

// Stop stops the runner and waits for a sweep in progress
func (r *MaintenanceRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info().Msg("Maintenance runner stopped")
}

func (r *MaintenanceRunner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce performs one retention sweep
func (r *MaintenanceRunner) RunOnce(ctx context.Context) {
	report, err := r.mappings.Maintenance(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Maintenance failed")
		return
	}
	r.log.Info().
		Int64("before", report.Before).
		Int64("after", report.After).
		Int64("removed", report.Removed()).
		Msg("Maintenance completed")
}
