package domain

import "time"

// MappingRetention is how long a mapping survives before the maintenance sweep reaps it
const MappingRetention = 30 * 24 * time.Hour

// MessageMapping represents one replicated message in one destination chat.
// The key is (SourceChatID, SourceMessageID, DestinationChatID); writing an
// existing key replaces the row.
type MessageMapping struct {
	SourceChatID         string
	SourceMessageID      string
	DestinationChatID    string
	DestinationMessageID string
	CreatedAt            time.Time
}

// MaintenanceReport describes one retention sweep
type MaintenanceReport struct {
	Before int64
	After  int64
}

// Removed returns the number of rows reaped
func (r MaintenanceReport) Removed() int64 {
	return r.Before - r.After
}

// DestinationIndex returns destination chat -> destination message for a set of mappings
func DestinationIndex(mappings []MessageMapping) map[string]string {
	index := make(map[string]string, len(mappings))
	for _, m := range mappings {
		index[m.DestinationChatID] = m.DestinationMessageID
	}
	return index
}
