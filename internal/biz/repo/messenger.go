package repo

import (
	"context"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// TextMode selects how a text message is rendered
type TextMode int

const (
	// TextMarkup is the lightweight markup mode used for normal sends
	TextMarkup TextMode = iota
	// TextPlain has no markup and no link preview
	TextPlain
)

// ChatAccess is the result of probing one chat
type ChatAccess struct {
	ChatID     string
	Name       string
	Accessible bool
	Reason     string
}

// MessengerRepo is the messaging platform capability consumed by the relay.
// Destination failures are returned as *domain.DestinationError.
type MessengerRepo interface {
	// SendText sends a text message and returns the new message id
	SendText(ctx context.Context, chatID, text string, mode TextMode) (string, error)

	// SendMedia sends media with an optional caption
	SendMedia(ctx context.Context, chatID string, media *domain.OutboundMedia, caption string) (string, error)

	// SendSticker sends media preserving sticker semantics
	SendSticker(ctx context.Context, chatID string, media *domain.OutboundMedia) (string, error)

	// EditText replaces the text of a sent message
	EditText(ctx context.Context, chatID, messageID, text string) error

	// DeleteMessage removes a sent message
	DeleteMessage(ctx context.Context, chatID, messageID string) error

	// JoinChat attempts to join the bot into a chat
	JoinChat(ctx context.Context, chatID string) error

	// ReferenceMedia returns a zero-copy sendable reference to the message's media.
	// Returns domain.ErrMediaUnavailable when the reference cannot be forwarded.
	ReferenceMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error)

	// DownloadMedia fetches the message's media and re-uploads it
	DownloadMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error)

	// ChatAccess probes whether the bot can see a chat
	ChatAccess(ctx context.Context, chatID string) (*ChatAccess, error)
}

// Notifier sends free-text status notifications to the admin chat
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// AssetRepo locates local replacement media assets
type AssetRepo interface {
	// Find returns the path of the first existing asset among the candidate file names
	Find(candidates ...string) (string, bool)

	// Count returns the number of assets on disk
	Count() (int, error)
}
