package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/metrics"
)

// DefaultQueueSize is the buffer of each dispatcher queue
const DefaultQueueSize = 256

// Relayer runs the replication pipeline for one new message
type Relayer interface {
	Relay(ctx context.Context, msg *domain.Message) (*domain.RelayReport, error)
}

// Deleter propagates one batch of deletions
type Deleter interface {
	Delete(ctx context.Context, ev *domain.DeletedEvent) (*domain.DeletionReport, error)
}

// Editor replays one edit
type Editor interface {
	Edit(ctx context.Context, ev *domain.EditedEvent) (*domain.EditReport, error)
}

type eventKind string

const (
	kindMessage eventKind = "message"
	kindDeleted eventKind = "deleted"
	kindEdited  eventKind = "edited"
)

type event struct {
	id      string
	kind    eventKind
	message *domain.Message
	deleted *domain.DeletedEvent
	edited  *domain.EditedEvent
}

// RelayService dispatches inbound events to their handlers. Deletions go
// through a priority queue that is always drained before normal events;
// every event runs in its own goroutine.
type RelayService struct {
	relay    Relayer
	deletion Deleter
	edit     Editor

	deletions chan event
	normal    chan event
	done      chan struct{}
	stopOnce  sync.Once
	inflight  sync.WaitGroup

	log zerolog.Logger
}

// NewRelayService creates a new dispatcher
func NewRelayService(relay Relayer, deletion Deleter, edit Editor, queueSize int, log zerolog.Logger) *RelayService {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &RelayService{
		relay:     relay,
		deletion:  deletion,
		edit:      edit,
		deletions: make(chan event, queueSize),
		normal:    make(chan event, queueSize),
		done:      make(chan struct{}),
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// SubmitMessage queues a new message. Returns false once the dispatcher has stopped.
func (s *RelayService) SubmitMessage(msg *domain.Message) bool {
	return s.enqueue(s.normal, event{kind: kindMessage, message: msg})
}

// SubmitDeletion queues a deletion batch on the priority queue
func (s *RelayService) SubmitDeletion(ev *domain.DeletedEvent) bool {
	return s.enqueue(s.deletions, event{kind: kindDeleted, deleted: ev})
}

// SubmitEdit queues an edit
func (s *RelayService) SubmitEdit(ev *domain.EditedEvent) bool {
	return s.enqueue(s.normal, event{kind: kindEdited, edited: ev})
}

func (s *RelayService) enqueue(ch chan<- event, ev event) bool {
	ev.id = uuid.NewString()
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case ch <- ev:
		return true
	case <-s.done:
		s.log.Warn().Str("event_id", ev.id).Str("kind", string(ev.kind)).Msg("Dispatcher stopped, event dropped")
		return false
	}
}

// Run dispatches events until ctx is done, then waits for in-flight handlers.
// Handlers run on a context detached from ctx so shutdown lets them finish.
func (s *RelayService) Run(ctx context.Context) error {
	handlerCtx := context.WithoutCancel(ctx)
	s.log.Info().Msg("Dispatcher started")

	defer func() {
		s.stopOnce.Do(func() { close(s.done) })
		if n := len(s.deletions) + len(s.normal); n > 0 {
			s.log.Warn().Int("queued", n).Msg("Dispatcher stopped with queued events")
		}
		s.inflight.Wait()
		s.log.Info().Msg("Dispatcher stopped")
	}()

	for {
		ev, ok := s.next(ctx)
		if !ok {
			return nil
		}
		s.spawn(handlerCtx, ev)
	}
}

// next returns the next event, always preferring a queued deletion
func (s *RelayService) next(ctx context.Context) (event, bool) {
	select {
	case ev := <-s.deletions:
		return ev, true
	default:
	}

	select {
	case <-ctx.Done():
		return event{}, false
	case ev := <-s.deletions:
		return ev, true
	case ev := <-s.normal:
		return ev, true
	}
}

// Wait blocks until all in-flight handlers have returned
func (s *RelayService) Wait() {
	s.inflight.Wait()
}

func (s *RelayService) spawn(ctx context.Context, ev event) {
	metrics.EventsTotal.WithLabelValues(string(ev.kind)).Inc()
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handle(ctx, ev)
	}()
}

func (s *RelayService) handle(ctx context.Context, ev event) {
	log := s.log.With().Str("event_id", ev.id).Str("kind", string(ev.kind)).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("Event handler panicked")
		}
		metrics.HandlerDuration.WithLabelValues(string(ev.kind)).Observe(time.Since(start).Seconds())
	}()

	ctx = log.WithContext(ctx)

	switch ev.kind {
	case kindMessage:
		report, err := s.relay.Relay(ctx, ev.message)
		if err != nil {
			log.Error().Err(err).Str("message_id", ev.message.ID).Msg("Relay failed")
			return
		}
		recordRelay(report)

	case kindDeleted:
		report, err := s.deletion.Delete(ctx, ev.deleted)
		if err != nil {
			log.Error().Err(err).Str("chat_id", ev.deleted.ChatID).Msg("Deletion failed")
			return
		}
		metrics.Deletions.WithLabelValues("deleted").Add(float64(report.Deleted))
		metrics.Deletions.WithLabelValues("not_found").Add(float64(report.NotFound))
		metrics.Deletions.WithLabelValues("error").Add(float64(report.Errors))

	case kindEdited:
		report, err := s.edit.Edit(ctx, ev.edited)
		if err != nil {
			log.Error().Err(err).Str("message_id", ev.edited.MessageID).Msg("Edit failed")
			return
		}
		metrics.Deliveries.WithLabelValues("edit", "ok").Add(float64(report.Edited))
		metrics.Deliveries.WithLabelValues("edit", "failed").Add(float64(report.Errors))
	}
}

func recordRelay(report *domain.RelayReport) {
	metrics.PipelineResults.WithLabelValues(string(report.Result)).Inc()
	for _, o := range report.Outcomes {
		metrics.Deliveries.WithLabelValues("send", outcomeLabel(o)).Inc()
	}
}

func outcomeLabel(o domain.DeliveryOutcome) string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Err != nil:
		return "failed"
	case o.Fallback:
		return "fallback"
	default:
		return "ok"
	}
}
