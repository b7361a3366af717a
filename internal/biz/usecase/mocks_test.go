package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// Mock implementations

type mappingKey struct {
	chat, orig, dest string
}

type mockMappingRepo struct {
	mu      sync.Mutex
	rows    map[mappingKey]domain.MessageMapping
	putErr  error
	deleted []string
}

func newMockMappingRepo() *mockMappingRepo {
	return &mockMappingRepo{rows: make(map[mappingKey]domain.MessageMapping)}
}

func (m *mockMappingRepo) Put(ctx context.Context, mp domain.MessageMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.rows[mappingKey{mp.SourceChatID, mp.SourceMessageID, mp.DestinationChatID}] = mp
	return nil
}

func (m *mockMappingRepo) Get(ctx context.Context, chatID, originalID, destChatID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.rows[mappingKey{chatID, originalID, destChatID}]
	return mp.DestinationMessageID, ok, nil
}

func (m *mockMappingRepo) Lookup(ctx context.Context, chatID, originalID string) ([]domain.MessageMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MessageMapping
	for k, mp := range m.rows {
		if k.chat == chatID && k.orig == originalID {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (m *mockMappingRepo) Delete(ctx context.Context, chatID, originalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.chat == chatID && k.orig == originalID {
			delete(m.rows, k)
		}
	}
	m.deleted = append(m.deleted, originalID)
	return nil
}

func (m *mockMappingRepo) Maintenance(ctx context.Context) (domain.MaintenanceReport, error) {
	return domain.MaintenanceReport{}, nil
}

func (m *mockMappingRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *mockMappingRepo) Close() error { return nil }

type sentMessage struct {
	chat    string
	text    string
	mode    repo.TextMode
	media   *domain.OutboundMedia
	sticker bool
}

type mockMessenger struct {
	mu      sync.Mutex
	seq     int
	sent    []sentMessage
	edits   []string
	deletes []string
	joins   []string

	// failures keyed by destination chat, consumed in order
	sendErrs    map[string][]error
	stickerErr  error
	deleteErr   map[string]error
	editErr     map[string]error
	referenceFn func(msg *domain.Message) (*domain.OutboundMedia, error)
	downloads    int
	sendHook     func(chat string)
	downloadHook func()
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{
		sendErrs:  make(map[string][]error),
		deleteErr: make(map[string]error),
		editErr:   make(map[string]error),
	}
}

func (m *mockMessenger) nextErr(chat string) error {
	errs := m.sendErrs[chat]
	if len(errs) == 0 {
		return nil
	}
	m.sendErrs[chat] = errs[1:]
	return errs[0]
}

func (m *mockMessenger) record(s sentMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextErr(s.chat); err != nil {
		return "", err
	}
	m.seq++
	m.sent = append(m.sent, s)
	return fmt.Sprintf("om_%s_%d", s.chat, m.seq), nil
}

func (m *mockMessenger) SendText(ctx context.Context, chatID, text string, mode repo.TextMode) (string, error) {
	if m.sendHook != nil {
		m.sendHook(chatID)
	}
	return m.record(sentMessage{chat: chatID, text: text, mode: mode})
}

func (m *mockMessenger) SendMedia(ctx context.Context, chatID string, media *domain.OutboundMedia, caption string) (string, error) {
	return m.record(sentMessage{chat: chatID, text: caption, media: media})
}

func (m *mockMessenger) SendSticker(ctx context.Context, chatID string, media *domain.OutboundMedia) (string, error) {
	if m.stickerErr != nil {
		return "", m.stickerErr
	}
	return m.record(sentMessage{chat: chatID, media: media, sticker: true})
}

func (m *mockMessenger) EditText(ctx context.Context, chatID, messageID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editErr[chatID]; err != nil {
		return err
	}
	m.edits = append(m.edits, messageID+"="+text)
	return nil
}

func (m *mockMessenger) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[chatID]; err != nil {
		return err
	}
	m.deletes = append(m.deletes, messageID)
	return nil
}

func (m *mockMessenger) JoinChat(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, chatID)
	return nil
}

func (m *mockMessenger) ReferenceMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error) {
	if m.referenceFn != nil {
		return m.referenceFn(msg)
	}
	return nil, domain.ErrMediaUnavailable
}

func (m *mockMessenger) DownloadMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error) {
	if m.downloadHook != nil {
		m.downloadHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
	return &domain.OutboundMedia{Kind: msg.Kind(), Key: "uploaded_" + msg.Media.Key, KeyType: domain.KeyTypeImage}, nil
}

func (m *mockMessenger) ChatAccess(ctx context.Context, chatID string) (*repo.ChatAccess, error) {
	return &repo.ChatAccess{ChatID: chatID, Accessible: true}, nil
}

type staticGate struct {
	active bool
}

func (g *staticGate) IsActive() bool { return g.active }

func permissionErr(chat string) error {
	return &domain.DestinationError{Chat: chat, Op: "send", Kind: domain.DestPermission, Code: 230002, Err: fmt.Errorf("bot not in chat")}
}

func genericErr(chat string) error {
	return &domain.DestinationError{Chat: chat, Op: "send", Kind: domain.DestGeneric, Err: fmt.Errorf("boom")}
}
