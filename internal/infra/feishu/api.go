package feishu

import (
	"bytes"
	"context"
	"fmt"
	"io"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// APIError is a non-success response from the Feishu open platform
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error: code=%d msg=%s", e.Op, e.Code, e.Msg)
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID string
	Name   string
}

// Resource is downloaded message media
type Resource struct {
	Data     []byte
	FileName string
}

// SendMessage posts a message to a chat and returns its message id
func (c *Client) SendMessage(ctx context.Context, chatID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "send message", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", fmt.Errorf("send message: empty response")
	}

	c.log.Debug().Str("chat_id", chatID).Str("type", msgType).Msg("Message sent")
	return *resp.Data.MessageId, nil
}

// UpdateMessage replaces the content of a text or post message sent by the bot
func (c *Client) UpdateMessage(ctx context.Context, messageID, msgType, content string) error {
	req := larkim.NewUpdateMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewUpdateMessageReqBodyBuilder().
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Update(ctx, req)
	if err != nil {
		return fmt.Errorf("update message failed: %w", err)
	}
	if !resp.Success() {
		return &APIError{Op: "update message", Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

// DeleteMessage recalls a message sent by the bot
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := c.larkCli.Im.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if !resp.Success() {
		return &APIError{Op: "delete message", Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

// JoinChat adds the bot to a public chat
func (c *Client) JoinChat(ctx context.Context, chatID string) error {
	req := larkim.NewMeJoinChatMembersReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.ChatMembers.MeJoin(ctx, req)
	if err != nil {
		return fmt.Errorf("join chat failed: %w", err)
	}
	if !resp.Success() {
		return &APIError{Op: "join chat", Code: resp.Code, Msg: resp.Msg}
	}
	c.log.Info().Str("chat_id", chatID).Msg("Joined chat")
	return nil
}

// GetChatInfo retrieves information about a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "get chat info", Code: resp.Code, Msg: resp.Msg}
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data != nil && resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	return info, nil
}

// DownloadResource fetches the media attached to a message.
// resourceType is "image" for images and "file" for everything else.
func (c *Client) DownloadResource(ctx context.Context, messageID, key, resourceType string) (*Resource, error) {
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(key).
		Type(resourceType).
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("download resource failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "download resource", Code: resp.Code, Msg: resp.Msg}
	}

	data, err := io.ReadAll(resp.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}

	c.log.Debug().Str("message_id", messageID).Int("bytes", len(data)).Msg("Resource downloaded")
	return &Resource{Data: data, FileName: resp.FileName}, nil
}

// UploadImage uploads an image for use in messages and returns its image_key
func (c *Client) UploadImage(ctx context.Context, data []byte) (string, error) {
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(bytes.NewReader(data)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload image failed: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "upload image", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("upload image: empty response")
	}
	return *resp.Data.ImageKey, nil
}

// UploadFile uploads a file and returns its file_key.
// fileType is "mp4" for videos and "stream" for generic files.
func (c *Client) UploadFile(ctx context.Context, fileType, fileName string, data []byte, durationMs int) (string, error) {
	body := larkim.NewCreateFileReqBodyBuilder().
		FileType(fileType).
		FileName(fileName).
		File(bytes.NewReader(data))
	if durationMs > 0 {
		body = body.Duration(durationMs)
	}

	req := larkim.NewCreateFileReqBuilder().
		Body(body.Build()).
		Build()

	resp, err := c.larkCli.Im.File.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload file failed: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "upload file", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil || resp.Data.FileKey == nil {
		return "", fmt.Errorf("upload file: empty response")
	}
	return *resp.Data.FileKey, nil
}
