package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Mailer delivers alerts to corporate inboxes as Lark post messages addressed
// by email. It is the second immediate-alert channel alongside the chat
// Notifier and also implements port.Notifier.
type Mailer struct {
	client  *lark.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewMailer creates a Lark-backed email sender.
func NewMailer(cfg Config, logger *zap.Logger) *Mailer {
	return &Mailer{
		client:  newClient(cfg),
		timeout: apiTimeout(cfg),
		logger:  logger,
	}
}

// Send delivers the message to every recipient's inbox. It returns the
// message id of the last successful delivery; any per-recipient failure
// fails the send.
func (m *Mailer) Send(ctx context.Context, recipients []string, subject, body string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("no recipients configured")
	}

	content, err := postContent(subject, body)
	if err != nil {
		return "", fmt.Errorf("failed to build mail content: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
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
				MsgType("post").
				Content(content).
				Build()).
			Build()

		resp, err := m.client.Im.Message.Create(sendCtx, req)
		if err != nil {
			m.logger.Error("Failed to send alert mail",
				zap.String("recipient", recipient),
				zap.Error(err))
			return "", fmt.Errorf("failed to send mail to %s: %w", recipient, err)
		}
		if !resp.Success() {
			m.logger.Error("Lark API returned failure",
				zap.String("recipient", recipient),
				zap.Int("code", resp.Code),
				zap.String("msg", resp.Msg))
			return "", fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
		}

		if resp.Data != nil && resp.Data.MessageId != nil {
			messageID = *resp.Data.MessageId
		}
	}

	m.logger.Info("Alert mail delivered",
		zap.Int("recipients", len(recipients)),
		zap.String("message_id", messageID))

	return messageID, nil
}

// postContent builds the Lark post message payload: a titled rich-text block
// with the body as a single text run.
func postContent(title, body string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"zh_cn": map[string]interface{}{
			"title": title,
			"content": [][]map[string]string{
				{{"tag": "text", "text": body}},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
