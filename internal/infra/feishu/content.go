package feishu

import "encoding/json"

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// TextContent builds the content of a plain text message
func TextContent(text string) string {
	return mustJSON(map[string]string{"text": text})
}

// MarkdownPostContent builds a post message holding one markdown element
func MarkdownPostContent(text string) string {
	return mustJSON(map[string]any{
		"zh_cn": map[string]any{
			"content": [][]map[string]any{
				{{"tag": "md", "text": text}},
			},
		},
	})
}

// ImageContent builds the content of an image message
func ImageContent(imageKey string) string {
	return mustJSON(map[string]string{"image_key": imageKey})
}

// ImagePostContent builds a post message with an image followed by a caption
func ImagePostContent(imageKey, caption string) string {
	return mustJSON(map[string]any{
		"zh_cn": map[string]any{
			"content": [][]map[string]any{
				{{"tag": "img", "image_key": imageKey}},
				{{"tag": "text", "text": caption}},
			},
		},
	})
}

// MediaPostContent builds a post message with a video followed by a caption
func MediaPostContent(fileKey, caption string) string {
	return mustJSON(map[string]any{
		"zh_cn": map[string]any{
			"content": [][]map[string]any{
				{{"tag": "media", "file_key": fileKey}},
				{{"tag": "text", "text": caption}},
			},
		},
	})
}

// FileContent builds the content of a file message
func FileContent(fileKey string) string {
	return mustJSON(map[string]string{"file_key": fileKey})
}

// MediaContent builds the content of a video message
func MediaContent(fileKey string) string {
	return mustJSON(map[string]string{"file_key": fileKey})
}

// StickerContent builds the content of a sticker message
func StickerContent(fileKey string) string {
	return mustJSON(map[string]string{"file_key": fileKey})
}
