package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
	"github.com/devricklin/feishu-relay/internal/biz/usecase"
	"github.com/devricklin/feishu-relay/internal/metrics"
)

// DefaultDriftInterval is how often the gate is checked against the wall clock
const DefaultDriftInterval = 15 * time.Minute

const notifyTimeout = 10 * time.Second

// ScheduleService drives the schedule gate: it arms the daily triggers,
// runs the periodic drift check and reports transitions to the admin chat.
type ScheduleService struct {
	gate     *usecase.ScheduleGate
	notifier repo.Notifier

	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(gate *usecase.ScheduleGate, notifier repo.Notifier, interval time.Duration, log zerolog.Logger) *ScheduleService {
	if interval <= 0 {
		interval = DefaultDriftInterval
	}
	s := &ScheduleService{
		gate:     gate,
		notifier: notifier,
		interval: interval,
		log:      log.With().Str("component", "schedule").Logger(),
	}
	gate.OnTransition(s.onTransition)
	return s
}

// Start arms the gate and starts the drift loop
func (s *ScheduleService) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	metrics.SetGate(s.gate.IsActive())
	s.gate.Start()
	s.logNextEvents()

	s.wg.Add(1)
	go s.driftLoop()

	s.log.Info().
		Str("window", s.gate.Window().String()).
		Bool("active", s.gate.IsActive()).
		Dur("drift_interval", s.interval).
		Msg("Schedule service started")
}

// Stop cancels the triggers and the drift loop
func (s *ScheduleService) Stop() {
	s.gate.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("Schedule service stopped")
}

// Reload installs a new window
func (s *ScheduleService) Reload(window domain.ScheduleWindow) {
	s.gate.Reload(window)
	s.logNextEvents()
}

func (s *ScheduleService) driftLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one drift check and logs the upcoming triggers
func (s *ScheduleService) Tick() {
	if s.gate.CheckDrift() {
		s.log.Info().Bool("active", s.gate.IsActive()).Msg("Schedule state corrected")
	}
	s.logNextEvents()
}

func (s *ScheduleService) logNextEvents() {
	start, end, ok := s.gate.NextEvents()
	if !ok {
		s.log.Debug().Bool("active", s.gate.IsActive()).Msg("No schedule triggers")
		return
	}
	s.log.Info().
		Time("next_activation", start).
		Time("next_deactivation", end).
		Bool("active", s.gate.IsActive()).
		Msg("Next schedule events")
}

func (s *ScheduleService) onTransition(t domain.Transition) {
	metrics.SetGate(t.Active)

	text := t.Notification()
	if text == "" || s.notifier == nil {
		return
	}

	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, text); err != nil {
		s.log.Warn().Err(err).Str("cause", string(t.Cause)).Msg("Failed to send schedule notification")
	}
}
