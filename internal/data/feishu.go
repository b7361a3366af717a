package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
	"github.com/devricklin/feishu-relay/internal/infra/feishu"
)

// FeishuAPI is the subset of the Feishu client used by the messenger
type FeishuAPI interface {
	SendMessage(ctx context.Context, chatID, msgType, content string) (string, error)
	UpdateMessage(ctx context.Context, messageID, msgType, content string) error
	DeleteMessage(ctx context.Context, messageID string) error
	JoinChat(ctx context.Context, chatID string) error
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
	DownloadResource(ctx context.Context, messageID, key, resourceType string) (*feishu.Resource, error)
	UploadImage(ctx context.Context, data []byte) (string, error)
	UploadFile(ctx context.Context, fileType, fileName string, data []byte, durationMs int) (string, error)
}

// Feishu response codes mapped to destination error kinds
var feishuErrorKinds = map[int]domain.DestinationErrorKind{
	230002:   domain.DestPermission, // bot not in chat
	230006:   domain.DestPermission, // bot ability not enabled
	230027:   domain.DestPermission, // lacks permission for this operation
	232011:   domain.DestPermission, // operator not in chat
	99991672: domain.DestPermission, // app scope not granted
	230017:   domain.DestBanned,     // bot muted in chat
	230035:   domain.DestBanned,     // sending is forbidden in chat
	230013:   domain.DestPrivate,    // target not visible to the app
	232006:   domain.DestPrivate,    // chat not visible
	230011:   domain.DestNotFound,   // message recalled
	231003:   domain.DestNotFound,   // message not found
	232010:   domain.DestNotFound,   // chat not found
}

// classifyFeishuError wraps err as a DestinationError
func classifyFeishuError(chatID, op string, err error) error {
	if err == nil {
		return nil
	}
	de := &domain.DestinationError{Chat: chatID, Op: op, Kind: domain.DestGeneric, Err: err}
	var apiErr *feishu.APIError
	if errors.As(err, &apiErr) {
		de.Code = apiErr.Code
		if kind, ok := feishuErrorKinds[apiErr.Code]; ok {
			de.Kind = kind
		}
	}
	return de
}

// FeishuMessenger implements the messenger and notifier on Feishu
type FeishuMessenger struct {
	api        FeishuAPI
	notifyChat string
	readFile   func(string) ([]byte, error)
	log        zerolog.Logger

	// Uploaded replacement assets, keyed by path and upload kind
	mu      sync.Mutex
	uploads map[string]string
}

// NewMessengerRepo creates the Feishu messenger. notifyChat may be empty to
// disable admin notifications.
func NewMessengerRepo(api FeishuAPI, notifyChat string, log zerolog.Logger) *FeishuMessenger {
	return &FeishuMessenger{
		api:        api,
		notifyChat: notifyChat,
		readFile:   os.ReadFile,
		log:        log.With().Str("component", "messenger").Logger(),
		uploads:    make(map[string]string),
	}
}

var (
	_ repo.MessengerRepo = (*FeishuMessenger)(nil)
	_ repo.Notifier      = (*FeishuMessenger)(nil)
)

// SendText sends a markdown post, or a plain text message in TextPlain mode
func (r *FeishuMessenger) SendText(ctx context.Context, chatID, text string, mode repo.TextMode) (string, error) {
	msgType, content := "post", feishu.MarkdownPostContent(text)
	if mode == repo.TextPlain {
		msgType, content = "text", feishu.TextContent(text)
	}
	id, err := r.api.SendMessage(ctx, chatID, msgType, content)
	return id, classifyFeishuError(chatID, "send", err)
}

// SendMedia sends media with an optional caption
func (r *FeishuMessenger) SendMedia(ctx context.Context, chatID string, media *domain.OutboundMedia, caption string) (string, error) {
	var (
		msgType, content string
		err              error
	)

	switch {
	case media.Kind == domain.MediaKindPhoto || (media.Kind == domain.MediaKindSticker && isImageAsset(media)):
		if err = r.ensureImage(ctx, media); err != nil {
			break
		}
		msgType, content = "image", feishu.ImageContent(media.Key)
		if caption != "" {
			msgType, content = "post", feishu.ImagePostContent(media.Key, caption)
		}

	case media.Kind == domain.MediaKindVideo:
		if err = r.ensureFile(ctx, media, "mp4"); err != nil {
			break
		}
		msgType, content = "media", feishu.MediaContent(media.Key)
		if caption != "" {
			msgType, content = "post", feishu.MediaPostContent(media.Key, caption)
		}

	default:
		if err = r.ensureFile(ctx, media, "stream"); err != nil {
			break
		}
		if caption != "" {
			r.log.Debug().Str("dest", chatID).Msg("Caption dropped, files cannot carry text")
		}
		msgType, content = "file", feishu.FileContent(media.Key)
	}
	if err != nil {
		return "", classifyFeishuError(chatID, "upload", err)
	}

	id, err := r.api.SendMessage(ctx, chatID, msgType, content)
	return id, classifyFeishuError(chatID, "send", err)
}

// SendSticker sends a platform sticker when the key is one. Local sticker
// assets go out as an image when static and as a file otherwise.
func (r *FeishuMessenger) SendSticker(ctx context.Context, chatID string, media *domain.OutboundMedia) (string, error) {
	if media.KeyType == domain.KeyTypeSticker {
		id, err := r.api.SendMessage(ctx, chatID, "sticker", feishu.StickerContent(media.Key))
		return id, classifyFeishuError(chatID, "send", err)
	}
	return r.SendMedia(ctx, chatID, media, "")
}

// EditText updates a relayed message. Relayed text is normally a post; a
// plain text fallback copy needs a text update instead.
func (r *FeishuMessenger) EditText(ctx context.Context, chatID, messageID, text string) error {
	err := r.api.UpdateMessage(ctx, messageID, "post", feishu.MarkdownPostContent(text))
	if err == nil {
		return nil
	}
	var apiErr *feishu.APIError
	if !errors.As(err, &apiErr) {
		return classifyFeishuError(chatID, "edit", err)
	}
	if textErr := r.api.UpdateMessage(ctx, messageID, "text", feishu.TextContent(text)); textErr != nil {
		return classifyFeishuError(chatID, "edit", err)
	}
	return nil
}

// DeleteMessage recalls a relayed message
func (r *FeishuMessenger) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return classifyFeishuError(chatID, "delete", r.api.DeleteMessage(ctx, messageID))
}

// JoinChat adds the bot to a destination chat
func (r *FeishuMessenger) JoinChat(ctx context.Context, chatID string) error {
	return classifyFeishuError(chatID, "join", r.api.JoinChat(ctx, chatID))
}

// ReferenceMedia returns a zero-copy reference. Only sticker keys are
// portable across chats; other keys are bound to their source message.
func (r *FeishuMessenger) ReferenceMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error) {
	if msg.Media == nil || msg.Media.Key == "" {
		return nil, fmt.Errorf("message %s has no media", msg.ID)
	}
	if msg.Media.Kind != domain.MediaKindSticker {
		return nil, domain.ErrMediaUnavailable
	}
	return &domain.OutboundMedia{
		Kind:    domain.MediaKindSticker,
		Key:     msg.Media.Key,
		KeyType: domain.KeyTypeSticker,
	}, nil
}

// DownloadMedia downloads the message media and uploads it as a new resource
func (r *FeishuMessenger) DownloadMedia(ctx context.Context, msg *domain.Message) (*domain.OutboundMedia, error) {
	if msg.Media == nil || msg.Media.Key == "" {
		return nil, fmt.Errorf("message %s has no media", msg.ID)
	}

	resourceType := "file"
	if msg.Media.Kind == domain.MediaKindPhoto {
		resourceType = "image"
	}
	res, err := r.api.DownloadResource(ctx, msg.ID, msg.Media.Key, resourceType)
	if err != nil {
		return nil, err
	}

	out := &domain.OutboundMedia{
		Kind:     msg.Media.Kind,
		FileName: firstNonEmpty(msg.Media.FileName, res.FileName, msg.Media.Key),
		Duration: msg.Media.Duration,
	}

	switch msg.Media.Kind {
	case domain.MediaKindPhoto:
		out.Key, err = r.api.UploadImage(ctx, res.Data)
		out.KeyType = domain.KeyTypeImage
	case domain.MediaKindVideo:
		out.Key, err = r.api.UploadFile(ctx, "mp4", out.FileName, res.Data, out.Duration)
		out.KeyType = domain.KeyTypeFile
	default:
		out.Key, err = r.api.UploadFile(ctx, "stream", out.FileName, res.Data, 0)
		out.KeyType = domain.KeyTypeFile
	}
	if err != nil {
		return nil, err
	}

	r.log.Debug().
		Str("message_id", msg.ID).
		Str("kind", string(out.Kind)).
		Int("bytes", len(res.Data)).
		Msg("Media re-uploaded")
	return out, nil
}

// ChatAccess probes a chat
func (r *FeishuMessenger) ChatAccess(ctx context.Context, chatID string) (*repo.ChatAccess, error) {
	info, err := r.api.GetChatInfo(ctx, chatID)
	if err != nil {
		de := classifyFeishuError(chatID, "probe", err)
		return &repo.ChatAccess{
			ChatID:     chatID,
			Accessible: false,
			Reason:     string(domain.DestinationErrorKindOf(de)),
		}, nil
	}
	return &repo.ChatAccess{ChatID: chatID, Name: info.Name, Accessible: true}, nil
}

// Notify sends a plain text message to the admin chat
func (r *FeishuMessenger) Notify(ctx context.Context, text string) error {
	if r.notifyChat == "" {
		return nil
	}
	_, err := r.SendText(ctx, r.notifyChat, text, repo.TextPlain)
	return err
}

func (r *FeishuMessenger) ensureImage(ctx context.Context, media *domain.OutboundMedia) error {
	if media.Key != "" && media.KeyType == domain.KeyTypeImage {
		return nil
	}
	key, err := r.upload(ctx, media.Path, "image", func(data []byte) (string, error) {
		return r.api.UploadImage(ctx, data)
	})
	if err != nil {
		return err
	}
	media.Key, media.KeyType = key, domain.KeyTypeImage
	return nil
}

func (r *FeishuMessenger) ensureFile(ctx context.Context, media *domain.OutboundMedia, fileType string) error {
	if media.Key != "" && media.KeyType == domain.KeyTypeFile {
		return nil
	}
	name := firstNonEmpty(media.FileName, filepath.Base(media.Path))
	key, err := r.upload(ctx, media.Path, fileType, func(data []byte) (string, error) {
		return r.api.UploadFile(ctx, fileType, name, data, media.Duration)
	})
	if err != nil {
		return err
	}
	media.Key, media.KeyType = key, domain.KeyTypeFile
	return nil
}

// upload reads a local asset and uploads it once per (path, kind)
func (r *FeishuMessenger) upload(ctx context.Context, path, kind string, fn func([]byte) (string, error)) (string, error) {
	if path == "" {
		return "", fmt.Errorf("media has neither key nor local path")
	}
	cacheKey := kind + ":" + path

	r.mu.Lock()
	key, ok := r.uploads[cacheKey]
	r.mu.Unlock()
	if ok {
		return key, nil
	}

	data, err := r.readFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read asset: %w", err)
	}
	key, err = fn(data)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.uploads[cacheKey] = key
	r.mu.Unlock()
	r.log.Info().Str("asset", filepath.Base(path)).Str("kind", kind).Msg("Asset uploaded")
	return key, nil
}

func isImageAsset(media *domain.OutboundMedia) bool {
	if media.KeyType == domain.KeyTypeImage {
		return true
	}
	switch strings.ToLower(filepath.Ext(media.Path)) {
	case ".webp", ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
