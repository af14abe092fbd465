package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Config holds Lark app credentials and the request timeout.
type Config struct {
	AppID      string
	AppSecret  string
	APITimeout time.Duration
}

// Notifier delivers alert messages through Lark. It implements port.Notifier
// with recipients addressed by email.
type Notifier struct {
	client  *lark.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewNotifier creates a Lark-backed notifier.
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	return &Notifier{
		client:  newClient(cfg),
		timeout: apiTimeout(cfg),
		logger:  logger,
	}
}

func newClient(cfg Config) *lark.Client {
	return lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
}

func apiTimeout(cfg Config) time.Duration {
	if cfg.APITimeout <= 0 {
		return 30 * time.Second
	}
	return cfg.APITimeout
}

// Send delivers the message to every recipient. It returns the message id of
// the last successful delivery; any per-recipient failure fails the send.
func (n *Notifier) Send(ctx context.Context, recipients []string, subject, body string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("no recipients configured")
	}

	content, err := textContent(fmt.Sprintf("[%s]\n%s", subject, body))
	if err != nil {
		return "", fmt.Errorf("failed to build message content: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var messageID string
	for _, recipient := range recipients {
		if recipient == "" {
			return "", fmt.Errorf("invalid empty recipient")
		}

		req := larkim.NewCreateMessageReqBuilder().
			ReceiveIdType("email").
			Body(larkim.NewCreateMessageReqBodyBuilder().
				ReceiveId(recipient).
				MsgType("text").
				Content(content).
				Build()).
			Build()

		resp, err := n.client.Im.Message.Create(sendCtx, req)
		if err != nil {
			n.logger.Error("Failed to send alert message",
				zap.String("recipient", recipient),
				zap.Error(err))
			return "", fmt.Errorf("failed to send message to %s: %w", recipient, err)
		}
		if !resp.Success() {
			n.logger.Error("Lark API returned failure",
				zap.String("recipient", recipient),
				zap.Int("code", resp.Code),
				zap.String("msg", resp.Msg))
			return "", fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
		}

		if resp.Data != nil && resp.Data.MessageId != nil {
			messageID = *resp.Data.MessageId
		}
	}

	n.logger.Info("Alert delivered",
		zap.Int("recipients", len(recipients)),
		zap.String("message_id", messageID))

	return messageID, nil
}

// textContent builds the Lark text message payload with proper escaping.
func textContent(text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
