package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsPoster/internal/ports"
)

const stageFinished = "stage_finished"

// Notifier reports finished stages to a Telegram chat via bot API. Other
// events are ignored.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.EventLog = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Append sends one message per stage_finished event.
func (n *Notifier) Append(ctx context.Context, events ...ports.Event) error {
	var errs []error
	for _, event := range events {
		if event.Kind != stageFinished {
			continue
		}
		if err := n.send(ctx, FormatEvent(event)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatEvent renders a stage summary as a short plain-text message.
func FormatEvent(event ports.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "newsposter %s: %s", event.Stage, event.Message)
	if event.Fields != nil {
		fmt.Fprintf(&b, "\nattempted %s, succeeded %s, failed %s, skipped %s",
			event.Fields["attempted"], event.Fields["succeeded"], event.Fields["failed"], event.Fields["skipped"])
		if fatal := event.Fields["fatal"]; fatal != "" {
			fmt.Fprintf(&b, "\nfatal: %s", fatal)
		}
	}
	fmt.Fprintf(&b, "\nrun %s", event.RunID)
	return b.String()
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
