package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SalesAnalytics/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects longer messages.
	maxMessageRunes = 4096
)

// Notifier sends load digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithAPIBase points the notifier at another bot API host.
func (n *Notifier) WithAPIBase(base string, client *http.Client) *Notifier {
	n.apiBase = strings.TrimRight(base, "/")
	if client != nil {
		n.client = client
	}
	return n
}

// PublishDigest posts a plain text message to Telegram.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", truncate(digest, maxMessageRunes))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	defer resp.Body.Close()

	// The bot API answers {"ok":false,"description":"..."} on rejection,
	// sometimes with a 200 status.
	var reply apiReply
	decodeErr := json.NewDecoder(resp.Body).Decode(&reply)
	switch {
	case resp.StatusCode != http.StatusOK && reply.Description != "":
		return fmt.Errorf("telegram rejected digest (%s): %s", resp.Status, reply.Description)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("telegram rejected digest: %s", resp.Status)
	case decodeErr != nil:
		return fmt.Errorf("decode telegram reply: %w", decodeErr)
	case !reply.OK:
		return errors.New("telegram rejected digest: " + reply.Description)
	}
	return nil
}

type apiReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
