package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Token  string
	ChatID string
	// APIURL overrides [DefaultTelegramAPI], mainly for tests and local
	// Bot API servers.
	APIURL string
}

type telegramSender struct {
	endpoint string
	chatID   string
	client   *http.Client
}

type telegramRequest struct {
	ChatID            string `json:"chat_id"`
	Text              string `json:"text"`
	DisableWebPreview bool   `json:"disable_web_page_preview"`
}

func newTelegramSender(cfg TelegramConfig, client *http.Client) (*telegramSender, error) {
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.ChatID == "" {
		return nil, errors.New("chat_id is required")
	}
	api := cfg.APIURL
	if api == "" {
		api = DefaultTelegramAPI
	}
	return &telegramSender{
		endpoint: strings.TrimRight(api, "/") + "/bot" + cfg.Token + "/sendMessage",
		chatID:   cfg.ChatID,
		client:   client,
	}, nil
}

func (s *telegramSender) send(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.URL != "" {
		text += "\n" + msg.URL
	}

	payload, err := json.Marshal(telegramRequest{
		ChatID:            s.chatID,
		Text:              text,
		DisableWebPreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		// the endpoint embeds the bot token; keep it out of the error
		return errors.New("failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	if err := doRequest(s.client, req); err != nil {
		return redactToken(err, s.endpoint)
	}
	return nil
}

// redactToken strips the endpoint, which contains the bot token, from
// errors produced by net/http.
func redactToken(err error, endpoint string) error {
	msg := err.Error()
	if !strings.Contains(msg, endpoint) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, endpoint, "<telegram endpoint>"))
}
