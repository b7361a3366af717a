package feishu

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Message represents a received Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	MsgType    string // text, post, image, sticker, file, media, audio
	ChatType   string // p2p, group
	Content    string // Text content, or caption for rich media
	MediaKey   string // image_key or file_key of the attached media
	FileName   string
	Duration   int // milliseconds
	SenderID   string
	CreateTime time.Time
}

// RecallEvent represents a recalled message
type RecallEvent struct {
	ChatID string
	MsgID  string
}

// UpdateEvent represents an edited message
type UpdateEvent struct {
	ChatID  string
	MsgID   string
	MsgType string
	Content string
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ParseMessage converts a receive event. Messages sent by apps are dropped
// so relayed copies never loop back.
func ParseMessage(event *larkim.P2MessageReceiveV1) (*Message, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil, false
	}
	raw := event.Event.Message

	msg := &Message{
		ChatID:   str(raw.ChatId),
		MsgID:    str(raw.MessageId),
		MsgType:  str(raw.MessageType),
		ChatType: str(raw.ChatType),
	}
	if msg.ChatID == "" || msg.MsgID == "" {
		return nil, false
	}

	if sender := event.Event.Sender; sender != nil {
		if str(sender.SenderType) == "app" {
			return nil, false
		}
		if sender.SenderId != nil {
			msg.SenderID = str(sender.SenderId.OpenId)
		}
	}

	// Create time is a millisecond Unix timestamp
	if ts, err := strconv.ParseInt(str(raw.CreateTime), 10, 64); err == nil {
		msg.CreateTime = time.UnixMilli(ts)
	}

	ParseContent(msg, str(raw.Content))
	return msg, true
}

// ParseRecall converts a recall event
func ParseRecall(event *larkim.P2MessageRecalledV1) (*RecallEvent, bool) {
	if event == nil || event.Event == nil {
		return nil, false
	}
	ev := &RecallEvent{
		ChatID: str(event.Event.ChatId),
		MsgID:  str(event.Event.MessageId),
	}
	if ev.ChatID == "" || ev.MsgID == "" {
		return nil, false
	}
	return ev, true
}

type updatedMessage struct {
	MessageID   string `json:"message_id"`
	ChatID      string `json:"chat_id"`
	MsgType     string `json:"msg_type"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

// ParseUpdate decodes the raw body of an im.message.updated_v1 event.
// The message may be nested under event.message or flattened into event.
func ParseUpdate(body []byte) (*UpdateEvent, error) {
	var payload struct {
		Event struct {
			updatedMessage
			Message *updatedMessage `json:"message"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode update event: %w", err)
	}

	m := payload.Event.updatedMessage
	if payload.Event.Message != nil {
		m = *payload.Event.Message
	}
	if m.MsgType == "" {
		m.MsgType = m.MessageType
	}
	if m.MessageID == "" || m.ChatID == "" {
		return nil, fmt.Errorf("update event missing message or chat id")
	}

	probe := &Message{MsgType: m.MsgType}
	ParseContent(probe, m.Content)
	return &UpdateEvent{
		ChatID:  m.ChatID,
		MsgID:   m.MessageID,
		MsgType: m.MsgType,
		Content: probe.Content,
	}, nil
}

// ParseContent fills text and media fields from the JSON content of msg.MsgType
func ParseContent(msg *Message, content string) {
	switch msg.MsgType {
	case "text":
		var parsed struct {
			Text string `json:"text"`
		}
		if json.Unmarshal([]byte(content), &parsed) == nil {
			msg.Content = parsed.Text
		}
	case "post":
		text, imageKey := parsePostContent(content)
		msg.Content = text
		msg.MediaKey = imageKey
	case "image", "sticker", "file", "media", "audio":
		var parsed struct {
			ImageKey string `json:"image_key"`
			FileKey  string `json:"file_key"`
			FileName string `json:"file_name"`
			Duration int    `json:"duration"`
		}
		if json.Unmarshal([]byte(content), &parsed) != nil {
			return
		}
		msg.MediaKey = parsed.FileKey
		if msg.MsgType == "image" {
			msg.MediaKey = parsed.ImageKey
		}
		msg.FileName = parsed.FileName
		msg.Duration = parsed.Duration
	}
}

// postBody unwraps the locale layer of an outgoing post; received posts have none
func postBody(content string) []byte {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &top); err != nil {
		return nil
	}
	if _, ok := top["content"]; ok {
		return []byte(content)
	}
	for _, locale := range []string{"zh_cn", "en_us", "ja_jp"} {
		if body, ok := top[locale]; ok {
			return body
		}
	}
	return nil
}

// parsePostContent flattens a rich text message into plain text and returns the first image key
func parsePostContent(content string) (string, string) {
	body := postBody(content)
	if body == nil {
		return "", ""
	}

	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			Href     string `json:"href,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserName string `json:"user_name,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", ""
	}

	var lines []string
	var imageKey string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var parts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text", "md":
				parts = append(parts, elem.Text)
			case "a":
				parts = append(parts, elem.Text)
			case "at":
				if elem.UserName != "" {
					parts = append(parts, "@"+elem.UserName)
				}
			case "img":
				if imageKey == "" {
					imageKey = elem.ImageKey
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ""))
		}
	}
	return strings.Join(lines, "\n"), imageKey
}
