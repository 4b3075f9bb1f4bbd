package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultNtfyServer is the public ntfy instance.
const DefaultNtfyServer = "https://ntfy.sh"

// NtfyConfig configures the ntfy channel.
type NtfyConfig struct {
	// Server is the base URL; defaults to [DefaultNtfyServer].
	Server string
	Topic  string
	// Token is an optional access token sent as a Bearer credential.
	Token string
	// Priority is passed through as the X-Priority header: min, low,
	// default, high, urgent or 1-5.
	Priority string
}

var ntfyPriorities = map[string]bool{
	"": true, "min": true, "low": true, "default": true, "high": true,
	"urgent": true, "max": true, "1": true, "2": true, "3": true, "4": true, "5": true,
}

type ntfySender struct {
	endpoint string
	cfg      NtfyConfig
	client   *http.Client
}

func newNtfySender(cfg NtfyConfig, client *http.Client) (*ntfySender, error) {
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if !ntfyPriorities[cfg.Priority] {
		return nil, fmt.Errorf("invalid priority %q", cfg.Priority)
	}
	server := cfg.Server
	if server == "" {
		server = DefaultNtfyServer
	}
	return &ntfySender{
		endpoint: strings.TrimRight(server, "/") + "/" + cfg.Topic,
		cfg:      cfg,
		client:   client,
	}, nil
}

// send posts the message body to the topic. The site URL becomes the
// notification's click action.
func (s *ntfySender) send(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("X-Title", msg.Title)
	if msg.URL != "" {
		req.Header.Set("X-Click", msg.URL)
	}
	if s.cfg.Priority != "" {
		req.Header.Set("X-Priority", s.cfg.Priority)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	return doRequest(s.client, req)
}

// doRequest executes req and turns non-2xx responses into errors that
// carry a prefix of the response body.
func doRequest(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
