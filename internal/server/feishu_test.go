package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/infra/feishu"
)

type mockSource struct {
	onMessage feishu.MessageHandler
	onRecall  feishu.RecallHandler
	onUpdate  feishu.UpdateHandler
}

func (m *mockSource) OnMessage(h feishu.MessageHandler) { m.onMessage = h }
func (m *mockSource) OnRecall(h feishu.RecallHandler)   { m.onRecall = h }
func (m *mockSource) OnUpdate(h feishu.UpdateHandler)   { m.onUpdate = h }
func (m *mockSource) Start(ctx context.Context) error   { return nil }
func (m *mockSource) Stop()                             {}

type mockDispatcher struct {
	mu        sync.Mutex
	messages  []*domain.Message
	deletions []*domain.DeletedEvent
	edits     []*domain.EditedEvent
}

func (m *mockDispatcher) SubmitMessage(msg *domain.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return true
}

func (m *mockDispatcher) SubmitDeletion(ev *domain.DeletedEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletions = append(m.deletions, ev)
	return true
}

func (m *mockDispatcher) SubmitEdit(ev *domain.EditedEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, ev)
	return true
}

func newTestServer(t *testing.T) (*FeishuServer, *mockSource, *mockDispatcher) {
	t.Helper()
	src, disp := &mockSource{}, &mockDispatcher{}
	s := NewFeishuServer(src, disp, []string{"oc_src"}, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, src, disp
}

func TestServer_FiltersBySourceChat(t *testing.T) {
	_, src, disp := newTestServer(t)

	src.onMessage(&feishu.Message{ChatID: "oc_other", MsgID: "om_1", MsgType: "text", Content: "hi"})
	src.onMessage(&feishu.Message{ChatID: "oc_src", MsgID: "om_2", MsgType: "text", Content: "hi"})
	src.onRecall(&feishu.RecallEvent{ChatID: "oc_other", MsgID: "om_1"})
	src.onUpdate(&feishu.UpdateEvent{ChatID: "oc_other", MsgID: "om_1", Content: "x"})

	if len(disp.messages) != 1 || disp.messages[0].ID != "om_2" {
		t.Errorf("messages = %v", disp.messages)
	}
	if len(disp.deletions) != 0 || len(disp.edits) != 0 {
		t.Error("events from unwatched chats must be ignored")
	}
}

func TestServer_DeduplicatesRedeliveries(t *testing.T) {
	s, src, disp := newTestServer(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	msg := &feishu.Message{ChatID: "oc_src", MsgID: "om_1", MsgType: "text", Content: "hi"}
	src.onMessage(msg)
	src.onMessage(msg)
	if len(disp.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(disp.messages))
	}

	now = now.Add(seenTTL + time.Second)
	src.onMessage(msg)
	if len(disp.messages) != 2 {
		t.Errorf("expired entry should not suppress, got %d", len(disp.messages))
	}
}

func TestServer_RecallAndUpdate(t *testing.T) {
	_, src, disp := newTestServer(t)

	src.onRecall(&feishu.RecallEvent{ChatID: "oc_src", MsgID: "om_1"})
	src.onRecall(&feishu.RecallEvent{ChatID: "oc_src", MsgID: "om_1"})
	src.onUpdate(&feishu.UpdateEvent{ChatID: "oc_src", MsgID: "om_1", Content: "new"})
	src.onUpdate(&feishu.UpdateEvent{ChatID: "oc_src", MsgID: "om_1", Content: "newer"})

	if len(disp.deletions) != 1 || disp.deletions[0].MessageIDs[0] != "om_1" {
		t.Errorf("deletions = %v", disp.deletions)
	}
	if len(disp.edits) != 2 || disp.edits[1].Text != "newer" {
		t.Errorf("edits = %v", disp.edits)
	}
}

func TestToDomainMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     feishu.Message
		kind    domain.MediaKind
		hasMedia bool
	}{
		{"text", feishu.Message{MsgType: "text", Content: "hi"}, domain.MediaKindText, false},
		{"post", feishu.Message{MsgType: "post", Content: "hi"}, domain.MediaKindText, false},
		{"post with image", feishu.Message{MsgType: "post", Content: "cap", MediaKey: "img_1"}, domain.MediaKindPhoto, true},
		{"sticker", feishu.Message{MsgType: "sticker", MediaKey: "file_s"}, domain.MediaKindSticker, true},
		{"image", feishu.Message{MsgType: "image", MediaKey: "img_1"}, domain.MediaKindPhoto, true},
		{"file", feishu.Message{MsgType: "file", MediaKey: "file_1", FileName: "a.pdf"}, domain.MediaKindDocument, true},
		{"media", feishu.Message{MsgType: "media", MediaKey: "file_v", Duration: 3000}, domain.MediaKindVideo, true},
		{"audio", feishu.Message{MsgType: "audio", MediaKey: "file_a"}, domain.MediaKindOther, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.ChatID, tt.msg.MsgID = "oc_src", "om_1"
			got := ToDomainMessage(&tt.msg)
			if got.Kind() != tt.kind {
				t.Errorf("Kind = %s, want %s", got.Kind(), tt.kind)
			}
			if got.HasMedia() != tt.hasMedia {
				t.Errorf("HasMedia = %v", got.HasMedia())
			}
			if got.HasMedia() && got.Media.Key != tt.msg.MediaKey {
				t.Errorf("Key = %q", got.Media.Key)
			}
		})
	}
}
