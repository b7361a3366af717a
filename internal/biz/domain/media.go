package domain

// MediaKeyType says what kind of platform key an OutboundMedia carries
type MediaKeyType string

const (
	KeyTypeNone    MediaKeyType = ""
	KeyTypeImage   MediaKeyType = "image"
	KeyTypeFile    MediaKeyType = "file"
	KeyTypeSticker MediaKeyType = "sticker"
)

// OutboundMedia is a media payload ready to be posted to a destination.
// Either Key is set, or Path names a local asset that the messenger uploads
// on first send and then caches in Key.
type OutboundMedia struct {
	Kind     MediaKind
	Key      string
	KeyType  MediaKeyType
	Path     string
	FileName string
	Duration int

	// Replaced marks media substituted from a local asset
	Replaced bool
	// Downloaded marks media re-uploaded after a restricted reference
	Downloaded bool
}

// AsAttachment returns a copy presented as a generic document. Keys other
// than file keys are dropped so the messenger re-uploads from Path.
func (m *OutboundMedia) AsAttachment() *OutboundMedia {
	cp := *m
	cp.Kind = MediaKindDocument
	if cp.KeyType != KeyTypeFile {
		cp.Key = ""
		cp.KeyType = KeyTypeNone
	}
	return &cp
}

// MediaRules holds the media substitution tables.
// Keys are source media keys, values are asset identifiers.
type MediaRules struct {
	StickerReplacements map[string]string
	ImageReplacements   map[string]string
}

// StickerAsset returns the asset id configured for a sticker key
func (r MediaRules) StickerAsset(key string) (string, bool) {
	id, ok := r.StickerReplacements[key]
	return id, ok && id != ""
}

// ImageAsset returns the asset id configured for an image key
func (r MediaRules) ImageAsset(key string) (string, bool) {
	id, ok := r.ImageReplacements[key]
	return id, ok && id != ""
}
