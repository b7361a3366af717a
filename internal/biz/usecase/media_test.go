package usecase

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

type mockAssetRepo struct {
	files map[string]bool
	asked [][]string
}

func (m *mockAssetRepo) Find(candidates ...string) (string, bool) {
	m.asked = append(m.asked, candidates)
	for _, c := range candidates {
		if m.files[c] {
			return filepath.Join("/media", c), true
		}
	}
	return "", false
}

func (m *mockAssetRepo) Count() (int, error) {
	return len(m.files), nil
}

func TestMediaResolver_Sticker(t *testing.T) {
	assets := &mockAssetRepo{files: map[string]bool{
		"sticker_cat.webm": true,
		"sticker_cat.tgs":  true,
	}}
	r := NewMediaResolver(assets, zerolog.Nop())
	rules := domain.MediaRules{StickerReplacements: map[string]string{
		"src1": "cat",
		"src2": "sticker_cat",
		"src3": "missing",
	}}

	// Video format wins over animated vector when no static image exists
	path, ok := r.Resolve(domain.MediaKindSticker, "src1", rules)
	if !ok || path != "/media/sticker_cat.webm" {
		t.Errorf("src1 = %q, %v", path, ok)
	}

	// Already-prefixed ids are not prefixed twice
	path, ok = r.Resolve(domain.MediaKindSticker, "src2", rules)
	if !ok || path != "/media/sticker_cat.webm" {
		t.Errorf("src2 = %q, %v", path, ok)
	}

	if _, ok := r.Resolve(domain.MediaKindSticker, "src3", rules); ok {
		t.Error("src3 should have no asset")
	}

	if _, ok := r.Resolve(domain.MediaKindSticker, "unknown", rules); ok {
		t.Error("unconfigured sticker resolved")
	}

	want := []string{"sticker_cat.webp", "sticker_cat.webm", "sticker_cat.tgs"}
	got := assets.asked[0]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate order = %v, want %v", got, want)
		}
	}
}

func TestMediaResolver_Photo(t *testing.T) {
	assets := &mockAssetRepo{files: map[string]bool{"image_logo.jpg": true}}
	r := NewMediaResolver(assets, zerolog.Nop())
	rules := domain.MediaRules{ImageReplacements: map[string]string{"img_1": "logo", "img_2": "gone"}}

	path, ok := r.Resolve(domain.MediaKindPhoto, "img_1", rules)
	if !ok || path != "/media/image_logo.jpg" {
		t.Errorf("img_1 = %q, %v", path, ok)
	}
	if _, ok := r.Resolve(domain.MediaKindPhoto, "img_2", rules); ok {
		t.Error("img_2 should have no asset")
	}
}

func TestMediaResolver_OtherKindsPassThrough(t *testing.T) {
	assets := &mockAssetRepo{files: map[string]bool{"image_x.jpg": true}}
	r := NewMediaResolver(assets, zerolog.Nop())
	rules := domain.MediaRules{ImageReplacements: map[string]string{"doc": "x"}}

	for _, kind := range []domain.MediaKind{domain.MediaKindDocument, domain.MediaKindVideo, domain.MediaKindOther} {
		if _, ok := r.Resolve(kind, "doc", rules); ok {
			t.Errorf("%s resolved a replacement", kind)
		}
	}
	if len(assets.asked) != 0 {
		t.Errorf("filesystem probed for pass-through kinds: %v", assets.asked)
	}
}
