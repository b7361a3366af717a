package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/infra/feishu"
)

// seenTTL is how long an event id is remembered for deduplication
const seenTTL = 5 * time.Minute

// EventSource is the inbound side of the Feishu client
type EventSource interface {
	OnMessage(handler feishu.MessageHandler)
	OnRecall(handler feishu.RecallHandler)
	OnUpdate(handler feishu.UpdateHandler)
	Start(ctx context.Context) error
	Stop()
}

// Dispatcher accepts domain events for asynchronous handling
type Dispatcher interface {
	SubmitMessage(msg *domain.Message) bool
	SubmitDeletion(ev *domain.DeletedEvent) bool
	SubmitEdit(ev *domain.EditedEvent) bool
}

// FeishuServer handles Feishu event intake
type FeishuServer struct {
	source     EventSource
	dispatcher Dispatcher
	sources    map[string]struct{}

	// Event deduplication cache
	seenMu sync.Mutex
	seen   map[string]time.Time
	now    func() time.Time

	log zerolog.Logger
}

// NewFeishuServer creates a new Feishu server that only accepts events from sourceChats
func NewFeishuServer(source EventSource, dispatcher Dispatcher, sourceChats []string, log zerolog.Logger) *FeishuServer {
	s := &FeishuServer{
		source:     source,
		dispatcher: dispatcher,
		sources:    make(map[string]struct{}, len(sourceChats)),
		seen:       make(map[string]time.Time),
		now:        time.Now,
		log:        log.With().Str("component", "server").Logger(),
	}
	for _, c := range sourceChats {
		s.sources[c] = struct{}{}
	}
	return s
}

// Start registers the handlers and blocks on the Feishu connection
func (s *FeishuServer) Start(ctx context.Context) error {
	s.source.OnMessage(s.handleMessage)
	s.source.OnRecall(s.handleRecall)
	s.source.OnUpdate(s.handleUpdate)
	s.log.Info().Int("source_chats", len(s.sources)).Msg("Listening for events")
	return s.source.Start(ctx)
}

// Stop stops the server
func (s *FeishuServer) Stop() {
	s.source.Stop()
}

func (s *FeishuServer) watched(chatID string) bool {
	_, ok := s.sources[chatID]
	return ok
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	if !s.watched(msg.ChatID) {
		return
	}
	if s.markSeen("msg:" + msg.MsgID) {
		s.log.Debug().Str("message_id", msg.MsgID).Msg("Duplicate message ignored")
		return
	}
	if !s.dispatcher.SubmitMessage(ToDomainMessage(msg)) {
		s.log.Warn().Str("message_id", msg.MsgID).Msg("Message not dispatched")
	}
}

func (s *FeishuServer) handleRecall(ev *feishu.RecallEvent) {
	if !s.watched(ev.ChatID) {
		return
	}
	if s.markSeen("recall:" + ev.MsgID) {
		return
	}
	deleted := &domain.DeletedEvent{ChatID: ev.ChatID, MessageIDs: []string{ev.MsgID}}
	if !s.dispatcher.SubmitDeletion(deleted) {
		s.log.Warn().Str("message_id", ev.MsgID).Msg("Deletion not dispatched")
	}
}

func (s *FeishuServer) handleUpdate(ev *feishu.UpdateEvent) {
	if !s.watched(ev.ChatID) {
		return
	}
	edited := &domain.EditedEvent{ChatID: ev.ChatID, MessageID: ev.MsgID, Text: ev.Content}
	if !s.dispatcher.SubmitEdit(edited) {
		s.log.Warn().Str("message_id", ev.MsgID).Msg("Edit not dispatched")
	}
}

// markSeen records key and reports whether it was already present
func (s *FeishuServer) markSeen(key string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	now := s.now()
	if ts, ok := s.seen[key]; ok && now.Sub(ts) < seenTTL {
		return true
	}
	s.seen[key] = now

	// Clean up expired records when marking new ones
	cutoff := now.Add(-seenTTL)
	for k, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, k)
		}
	}
	return false
}

// ToDomainMessage maps a Feishu message to the relay's message model
func ToDomainMessage(msg *feishu.Message) *domain.Message {
	out := &domain.Message{
		ID:         msg.MsgID,
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		Text:       msg.Content,
		CreateTime: msg.CreateTime,
	}

	kind := mediaKind(msg)
	if kind != domain.MediaKindText {
		out.Media = &domain.MediaRef{
			Kind:     kind,
			Key:      msg.MediaKey,
			FileName: msg.FileName,
			Duration: msg.Duration,
		}
	}
	return out
}

func mediaKind(msg *feishu.Message) domain.MediaKind {
	switch msg.MsgType {
	case "text":
		return domain.MediaKindText
	case "post":
		// A rich text message with an embedded image is relayed as a captioned photo
		if msg.MediaKey != "" {
			return domain.MediaKindPhoto
		}
		return domain.MediaKindText
	case "sticker":
		return domain.MediaKindSticker
	case "image":
		return domain.MediaKindPhoto
	case "file":
		return domain.MediaKindDocument
	case "media":
		return domain.MediaKindVideo
	default:
		return domain.MediaKindOther
	}
}
