package repo

import (
	"context"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// MappingRepo is the identity store interface.
// Lock contention is retried inside the implementation; errors that reach the
// caller are *domain.StoreError.
type MappingRepo interface {
	// Put upserts the mapping for (chat, original, destination chat)
	Put(ctx context.Context, m domain.MessageMapping) error

	// Get returns the destination message id, ok=false when absent
	Get(ctx context.Context, chatID, originalID, destChatID string) (string, bool, error)

	// Lookup returns every destination mapping of one source message
	Lookup(ctx context.Context, chatID, originalID string) ([]domain.MessageMapping, error)

	// Delete removes every destination mapping of one source message; absent is a no-op
	Delete(ctx context.Context, chatID, originalID string) error

	// Maintenance reaps rows older than the retention period and compacts storage
	Maintenance(ctx context.Context) (domain.MaintenanceReport, error)

	// Count returns the number of stored rows
	Count(ctx context.Context) (int64, error)

	// Close releases the store
	Close() error
}
