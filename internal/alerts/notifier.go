package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNoTransport = errors.New("channel has no delivery transport")

// Notification is the channel-independent content of one alert.
type Notification struct {
	MonitorID   string
	MonitorName string
	URL         string
	Transition  Transition
	Message     string
	Timestamp   time.Time
}

// Channel is one resolved delivery target for an account.
type Channel struct {
	Type     string
	Endpoint string
	ChatID   string
}

type Notifier interface {
	// Type returns the channel type served, e.g. "discord".
	Type() string
	Send(ctx context.Context, ch Channel, n Notification) error
}

type webhookClient struct {
	client *http.Client
}

func (w webhookClient) postJSON(ctx context.Context, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", stripURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request to %s failed: %w", req.URL.Host, stripURL(err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// stripURL drops the request URL from transport errors. Webhook paths and the
// Telegram bot key are credentials and must not reach the logs.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

type DiscordNotifier struct {
	webhookClient
}

func NewDiscordNotifier(client *http.Client) *DiscordNotifier {
	return &DiscordNotifier{webhookClient{client}}
}

func (d *DiscordNotifier) Type() string { return "discord" }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

const (
	discordRed   = 15158332
	discordGreen = 3066993
)

func (d *DiscordNotifier) Send(ctx context.Context, ch Channel, n Notification) error {
	embed := discordEmbed{
		Title:       "🟢 Monitor Up",
		Description: n.Message,
		Color:       discordGreen,
		Timestamp:   n.Timestamp.UTC().Format(time.RFC3339),
	}
	if n.Transition == TransitionDegraded {
		embed.Title = "🔴 Monitor Down"
		embed.Color = discordRed
	}

	return d.postJSON(ctx, ch.Endpoint, discordPayload{
		Content: n.Message,
		Embeds:  []discordEmbed{embed},
	})
}

type SlackNotifier struct {
	webhookClient
}

func NewSlackNotifier(client *http.Client) *SlackNotifier {
	return &SlackNotifier{webhookClient{client}}
}

func (s *SlackNotifier) Type() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, ch Channel, n Notification) error {
	return s.postJSON(ctx, ch.Endpoint, map[string]string{"text": n.Message})
}

// TelegramNotifier delivers through the Bot API; Endpoint holds the bot key.
type TelegramNotifier struct {
	webhookClient
	apiURL string
}

func NewTelegramNotifier(client *http.Client, apiURL string) *TelegramNotifier {
	return &TelegramNotifier{webhookClient: webhookClient{client}, apiURL: strings.TrimRight(apiURL, "/")}
}

func (t *TelegramNotifier) Type() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, ch Channel, n Notification) error {
	if ch.ChatID == "" {
		return fmt.Errorf("%w: telegram chat id not configured", ErrNoTransport)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, ch.Endpoint)
	return t.postJSON(ctx, endpoint, map[string]string{
		"chat_id": ch.ChatID,
		"text":    n.Message,
	})
}
