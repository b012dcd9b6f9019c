package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// excerptLen bounds how much of the prompt is quoted in an alert.
const excerptLen = 280

// Alert describes a prompt that scored at the critical level.
type Alert struct {
	SessionID string
	RecordID  string
	Domain    string
	Text      string
	Score     float64
	Level     string
	Reasons   []string
	Patterns  []string
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostAlert posts a suspicious-prompt alert and returns the message timestamp.
func (p *Poster) PostAlert(ctx context.Context, a Alert) (string, error) {
	text := formatAlertMessage(a)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "record `" + a.RecordID + "`",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted alert to slack", "ts", ts, "record_id", a.RecordID, "level", a.Level)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatAlertMessage(a Alert) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, ":rotating_light: *Suspicious prompt (%s, score %.2f)*\n", a.Level, a.Score)
	if a.SessionID != "" {
		fmt.Fprintf(&sb, "*Session:* %s\n", a.SessionID)
	}
	if a.Domain != "" {
		fmt.Fprintf(&sb, "*Domain:* %s\n", a.Domain)
	}
	if len(a.Patterns) > 0 {
		fmt.Fprintf(&sb, "*Attack patterns:* %s\n", strings.Join(a.Patterns, ", "))
	}

	if len(a.Reasons) > 0 {
		sb.WriteString("*Reasons:*\n")
		for _, r := range a.Reasons {
			fmt.Fprintf(&sb, "• %s\n", r)
		}
	}

	fmt.Fprintf(&sb, "> %s", excerpt(a.Text))
	return sb.String()
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= excerptLen {
		return text
	}
	r := []rune(text)
	return string(r[:excerptLen]) + "…"
}
