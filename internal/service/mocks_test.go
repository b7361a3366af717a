package service

import (
	"context"
	"errors"
	"sync"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// Mock implementations

type mockRelayer struct {
	mu    sync.Mutex
	seen  []string
	panic bool
}

func (m *mockRelayer) Relay(ctx context.Context, msg *domain.Message) (*domain.RelayReport, error) {
	if m.panic && msg.Text == "boom" {
		panic("relay exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, msg.ID)
	return &domain.RelayReport{MessageID: msg.ID, Result: domain.ResultRelayed}, nil
}

func (m *mockRelayer) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen...)
}

type mockDeleter struct {
	mu      sync.Mutex
	batches [][]string
}

func (m *mockDeleter) Delete(ctx context.Context, ev *domain.DeletedEvent) (*domain.DeletionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, ev.MessageIDs)
	return &domain.DeletionReport{Deleted: len(ev.MessageIDs)}, nil
}

type mockEditor struct {
	mu    sync.Mutex
	edits []string
}

func (m *mockEditor) Edit(ctx context.Context, ev *domain.EditedEvent) (*domain.EditReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, ev.Text)
	return &domain.EditReport{Found: true, Edited: 1}, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (m *mockNotifier) Notify(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return m.err
}

func (m *mockNotifier) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// mockMessenger only answers ChatAccess
type mockMessenger struct {
	access map[string]*repo.ChatAccess
	errs   map[string]error
}

func (m *mockMessenger) SendText(ctx context.Context, chatID, text string, mode repo.TextMode) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockMessenger) SendMedia(ctx context.Context, chatID string, media *domain.OutboundMedia, caption string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockMessenger) SendSticker(ctx context.Context, chatID string, media *domain.OutboundMedia) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockMessenger) EditText(ctx context.Context, chatID, messageID, text string) error {
	return errors.New("not implemented")
}

func (m *mockMessenger) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return errors.New("not implemented")
}

func (m *mockMessenger) JoinChat(ctx context.Context, chatID string) error {
	return errors.New("not implemented")
}

func (m *mockMessenger) ReferenceMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error) {
	return nil, domain.ErrMediaUnavailable
}

func (m *mockMessenger) DownloadMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error) {
	return nil, domain.ErrMediaUnavailable
}

func (m *mockMessenger) ChatAccess(ctx context.Context, chatID string) (*repo.ChatAccess, error) {
	if err, ok := m.errs[chatID]; ok {
		return nil, err
	}
	if a, ok := m.access[chatID]; ok {
		return a, nil
	}
	return &repo.ChatAccess{ChatID: chatID, Accessible: true}, nil
}

type mockMappingRepo struct {
	mu           sync.Mutex
	maintenances int
	err          error
}

func (m *mockMappingRepo) Put(ctx context.Context, mapping domain.MessageMapping) error { return nil }

func (m *mockMappingRepo) Get(ctx context.Context, chatID, originalID, destChatID string) (string, bool, error) {
	return "", false, nil
}

func (m *mockMappingRepo) Lookup(ctx context.Context, chatID, originalID string) ([]domain.MessageMapping, error) {
	return nil, nil
}

func (m *mockMappingRepo) Delete(ctx context.Context, chatID, originalID string) error { return nil }

func (m *mockMappingRepo) Maintenance(ctx context.Context) (domain.MaintenanceReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maintenances++
	return domain.MaintenanceReport{Before: 10, After: 4}, m.err
}

func (m *mockMappingRepo) Count(ctx context.Context) (int64, error) { return 4, nil }

func (m *mockMappingRepo) Close() error { return nil }
