package usecase

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// Sticker assets are probed in this order: static image, video, animated vector
var stickerExtensions = []string{".webp", ".webm", ".tgs"}

// MediaResolver maps source media to local replacement assets
type MediaResolver struct {
	assets repo.AssetRepo
	log    zerolog.Logger
}

// NewMediaResolver creates a new media resolver
func NewMediaResolver(assets repo.AssetRepo, log zerolog.Logger) *MediaResolver {
	return &MediaResolver{
		assets: assets,
		log:    log.With().Str("component", "media").Logger(),
	}
}

// Resolve returns the replacement asset path for a media item, if one is configured and present
func (r *MediaResolver) Resolve(kind domain.MediaKind, mediaID string, rules domain.MediaRules) (string, bool) {
	switch kind {
	case domain.MediaKindSticker:
		id, ok := rules.StickerAsset(mediaID)
		if !ok {
			return "", false
		}
		if !strings.HasPrefix(id, "sticker_") {
			id = "sticker_" + id
		}
		candidates := make([]string, len(stickerExtensions))
		for i, ext := range stickerExtensions {
			candidates[i] = id + ext
		}
		path, found := r.assets.Find(candidates...)
		if !found {
			r.log.Warn().
				Str("media_id", mediaID).
				Str("asset", id).
				Msg("Sticker replacement configured but no asset file found")
			return "", false
		}
		return path, true

	case domain.MediaKindPhoto:
		id, ok := rules.ImageAsset(mediaID)
		if !ok {
			return "", false
		}
		path, found := r.assets.Find("image_" + id + ".jpg")
		if !found {
			r.log.Warn().
				Str("media_id", mediaID).
				Str("asset", id).
				Msg("Image replacement configured but no asset file found")
			return "", false
		}
		return path, true
	}
	return "", false
}
