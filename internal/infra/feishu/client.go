package feishu

import (
	"context"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"
)

const eventMessageUpdated = "im.message.updated_v1"

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// RecallHandler is the callback for recalled messages
type RecallHandler func(ev *RecallEvent)

// UpdateHandler is the callback for edited messages
type UpdateHandler func(ev *UpdateEvent)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	onRecall  RecallHandler
	onUpdate  UpdateHandler
	cancel    context.CancelFunc
	log       zerolog.Logger
}

// NewClient creates a new Feishu client. The REST client is usable immediately;
// Start opens the event connection.
func NewClient(appID, appSecret string, log zerolog.Logger) *Client {
	log = log.With().Str("component", "feishu").Logger()
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret, lark.WithLogger(newLarkLogger(log)), lark.WithLogLevel(larkcore.LogLevelInfo)),
		log:       log,
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// OnRecall sets the recall handler
func (c *Client) OnRecall(handler RecallHandler) {
	c.onRecall = handler
}

// OnUpdate sets the edit handler
func (c *Client) OnUpdate(handler UpdateHandler) {
	c.onUpdate = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done or the connection fails
func (c *Client) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	// Handlers must return quickly so the SDK can ACK; work is handed off
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			msg, ok := ParseMessage(event)
			if !ok {
				return nil
			}
			c.log.Debug().
				Str("chat_id", msg.ChatID).
				Str("message_id", msg.MsgID).
				Str("type", msg.MsgType).
				Msg("Message received")
			if c.onMessage != nil {
				c.onMessage(msg)
			}
			return nil
		}).
		OnP2MessageRecalledV1(func(ctx context.Context, event *larkim.P2MessageRecalledV1) error {
			ev, ok := ParseRecall(event)
			if !ok {
				return nil
			}
			if c.onRecall != nil {
				c.onRecall(ev)
			}
			return nil
		}).
		OnCustomizedEvent(eventMessageUpdated, func(ctx context.Context, event *larkevent.EventReq) error {
			ev, err := ParseUpdate(event.Body)
			if err != nil {
				c.log.Warn().Err(err).Msg("Malformed message update event")
				return nil
			}
			if c.onUpdate != nil {
				c.onUpdate(ev)
			}
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogger(newLarkLogger(c.log)),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info().Msg("Starting WebSocket connection")

	errCh := make(chan error, 1)
	go func() { errCh <- c.wsCli.Start(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("feishu websocket: %w", err)
		}
		return nil
	}
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.log.Info().Msg("Disconnected")
}
