// Package notify sends operator notifications over the Telegram bot API.
// Delivery is best-effort: failures are logged and swallowed, never retried,
// and never block a probe.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier is a fire-and-forget message sender with optional file
// attachments.
type Notifier interface {
	Notify(ctx context.Context, text string, files ...string)
}

// Telegram sends messages and documents to a single preconfigured chat.
type Telegram struct {
	client *resty.Client
	chatID string
	logger *slog.Logger
}

// NewTelegram creates a notifier for the given bot token and chat. If either
// is empty it returns a Nop notifier, so the daemon can run unconfigured.
func NewTelegram(botToken, chatID string, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if botToken == "" || chatID == "" {
		logger.Info("notify: telegram not configured, notifications disabled")
		return Nop{}
	}

	client := resty.New()
	client.SetBaseURL("https://api.telegram.org/bot" + botToken)
	client.SetTimeout(30 * time.Second)

	return &Telegram{client: client, chatID: chatID, logger: logger}
}

// Notify sends text, then each file as a separate document. Any failure is
// logged and the rest of the batch still goes out.
func (t *Telegram) Notify(ctx context.Context, text string, files ...string) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"chat_id": t.chatID,
			"text":    text,
		}).
		Post("/sendMessage")
	if err := apiErr(resp, err); err != nil {
		t.logger.Warn("notify: send message failed", "error", err)
	} else {
		t.logger.Info("notify: message sent")
	}

	for _, file := range files {
		if file == "" {
			continue
		}
		resp, err := t.client.R().
			SetContext(ctx).
			SetFormData(map[string]string{"chat_id": t.chatID}).
			SetFile("document", file).
			Post("/sendDocument")
		if err := apiErr(resp, err); err != nil {
			t.logger.Warn("notify: send document failed", "file", file, "error", err)
		} else {
			t.logger.Info("notify: document sent", "file", file)
		}
	}
}

func apiErr(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("telegram: %s: %s", resp.Status(), resp.String())
	}
	return nil
}

// Nop discards all notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string, ...string) {}
