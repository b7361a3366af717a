package domain

import (
	"strings"
	"time"
)

// MediaKind classifies the payload of a message
type MediaKind string

const (
	MediaKindText     MediaKind = "text"
	MediaKindSticker  MediaKind = "sticker"
	MediaKindPhoto    MediaKind = "photo"
	MediaKindDocument MediaKind = "document"
	MediaKindVideo    MediaKind = "video"
	MediaKindOther    MediaKind = "other"
)

// MediaRef points at the media attached to a source message
type MediaRef struct {
	Kind     MediaKind
	Key      string // image_key or file_key on the platform
	FileName string
	Duration int // milliseconds, video only
}

// Message represents a new message observed in a source chat
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	Text       string // Raw text, or caption when media is attached
	Media      *MediaRef
	CreateTime time.Time
}

// HasMedia reports whether the message carries media
func (m *Message) HasMedia() bool {
	return m.Media != nil
}

// Kind returns the media kind, text when no media is attached
func (m *Message) Kind() MediaKind {
	if m.Media == nil {
		return MediaKindText
	}
	return m.Media.Kind
}

// DeletedEvent represents one or more messages removed from a source chat
type DeletedEvent struct {
	ChatID     string
	MessageIDs []string
}

// EditedEvent represents a message edited in a source chat
type EditedEvent struct {
	ChatID    string
	MessageID string
	Text      string
}

var adminCommands = map[string]struct{}{
	"/help":          {},
	"/status":        {},
	"/config":        {},
	"/block":         {},
	"/unblock":       {},
	"/blocklist":     {},
	"/replace":       {},
	"/unreplace":     {},
	"/replacelist":   {},
	"/schedule":      {},
	"/settime":       {},
	"/showschedule":  {},
	"/deletestatus":  {},
	"/clearmappings": {},
	"/textoonly":     {},
}

// IsAdminCommand reports whether text starts with an administrative command token
func IsAdminCommand(text string) bool {
	if !strings.HasPrefix(text, "/") {
		return false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	_, ok := adminCommands[strings.ToLower(fields[0])]
	return ok
}
