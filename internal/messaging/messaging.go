// Package messaging sends operator alerts for pipeline runs to Slack and
// Discord webhooks.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flaneur/internal/pipeline"
)

// MessagePlatform represents different messaging platforms
type MessagePlatform string

const (
	PlatformSlack   MessagePlatform = "slack"
	PlatformDiscord MessagePlatform = "discord"
)

// maxAlertErrors is how many error lines an alert quotes.
const maxAlertErrors = 5

// SlackMessage represents a Slack message structure
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Blocks      []SlackBlock      `json:"blocks,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
}

// SlackBlock represents a Slack block kit element
type SlackBlock struct {
	Type string     `json:"type"`
	Text *SlackText `json:"text,omitempty"`
}

// SlackText represents text in Slack blocks
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackAttachment represents legacy Slack attachments
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField represents fields in attachments
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// DiscordMessage represents a Discord message structure
type DiscordMessage struct {
	Content  string         `json:"content,omitempty"`
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents fields in Discord embeds
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Options configure a MessagingClient.
type Options struct {
	SlackWebhookURL   string
	SlackUsername     string
	SlackIconEmoji    string
	DiscordWebhookURL string
	DiscordUsername   string
	Timeout           time.Duration
}

// MessagingClient handles sending messages to different platforms
type MessagingClient struct {
	opts       Options
	HTTPClient *http.Client
}

// NewMessagingClient creates a new messaging client
func NewMessagingClient(opts Options) *MessagingClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MessagingClient{
		opts:       opts,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether any webhook is configured.
func (c *MessagingClient) Enabled() bool {
	return c.opts.SlackWebhookURL != "" || c.opts.DiscordWebhookURL != ""
}

// NotifyRunFailure sends a failed-run alert to every configured platform.
func (c *MessagingClient) NotifyRunFailure(ctx context.Context, s *pipeline.Summary) error {
	var errs []error
	if c.opts.SlackWebhookURL != "" {
		msg := ConvertToSlackMessage(s)
		msg.Username = c.opts.SlackUsername
		msg.IconEmoji = c.opts.SlackIconEmoji
		if err := c.SendSlackMessage(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if c.opts.DiscordWebhookURL != "" {
		msg := ConvertToDiscordMessage(s)
		msg.Username = c.opts.DiscordUsername
		if err := c.SendDiscordMessage(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func alertTitle(s *pipeline.Summary) string {
	return fmt.Sprintf("Pipeline run failed: %s", s.Job)
}

func alertErrors(s *pipeline.Summary) string {
	errs := s.Errors()
	if len(errs) == 0 {
		return "(no error detail recorded)"
	}
	var b strings.Builder
	for i, e := range errs {
		if i == maxAlertErrors {
			fmt.Fprintf(&b, "…and %d more", len(errs)-maxAlertErrors)
			break
		}
		fmt.Fprintf(&b, "• %s\n", e)
	}
	return strings.TrimSpace(b.String())
}

func alertCounts(s *pipeline.Summary) (processed, succeeded, failed string) {
	p, ok, f := s.Totals()
	return fmt.Sprint(p), fmt.Sprint(ok), fmt.Sprint(f)
}

// ConvertToSlackMessage renders a run summary as a Slack alert
func ConvertToSlackMessage(s *pipeline.Summary) *SlackMessage {
	processed, succeeded, failed := alertCounts(s)
	return &SlackMessage{
		Text: alertTitle(s),
		Blocks: []SlackBlock{
			{Type: "header", Text: &SlackText{Type: "plain_text", Text: alertTitle(s)}},
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: alertErrors(s)}},
		},
		Attachments: []SlackAttachment{{
			Color: "#d9534f",
			Fields: []SlackField{
				{Title: "Processed", Value: processed, Short: true},
				{Title: "Succeeded", Value: succeeded, Short: true},
				{Title: "Failed", Value: failed, Short: true},
				{Title: "Elapsed", Value: s.Elapsed().Round(time.Millisecond).String(), Short: true},
			},
			Footer: "flaneur",
			Ts:     s.StartedAt.Unix(),
		}},
	}
}

// ConvertToDiscordMessage renders a run summary as a Discord alert
func ConvertToDiscordMessage(s *pipeline.Summary) *DiscordMessage {
	processed, succeeded, failed := alertCounts(s)
	return &DiscordMessage{
		Embeds: []DiscordEmbed{{
			Title:       alertTitle(s),
			Description: alertErrors(s),
			Color:       0xD9534F,
			Fields: []DiscordEmbedField{
				{Name: "Processed", Value: processed, Inline: true},
				{Name: "Succeeded", Value: succeeded, Inline: true},
				{Name: "Failed", Value: failed, Inline: true},
			},
			Timestamp: s.StartedAt.UTC().Format(time.RFC3339),
		}},
	}
}

// SendSlackMessage sends a message to Slack webhook
func (c *MessagingClient) SendSlackMessage(ctx context.Context, message *SlackMessage) error {
	if c.opts.SlackWebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}
	return c.post(ctx, PlatformSlack, c.opts.SlackWebhookURL, message, http.StatusOK)
}

// SendDiscordMessage sends a message to Discord webhook
func (c *MessagingClient) SendDiscordMessage(ctx context.Context, message *DiscordMessage) error {
	if c.opts.DiscordWebhookURL == "" {
		return fmt.Errorf("discord webhook URL not configured")
	}
	return c.post(ctx, PlatformDiscord, c.opts.DiscordWebhookURL, message, http.StatusOK, http.StatusNoContent)
}

func (c *MessagingClient) post(ctx context.Context, platform MessagePlatform, url string, message any, okStatus ...int) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", platform, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s message: %w", platform, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, code := range okStatus {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s webhook returned status %d: %s", platform, resp.StatusCode, string(body))
}

// ValidateWebhookURL validates if a webhook URL is properly formatted
func ValidateWebhookURL(platform MessagePlatform, url string) error {
	if url == "" {
		return fmt.Errorf("%s webhook URL cannot be empty", platform)
	}

	switch platform {
	case PlatformSlack:
		if !strings.Contains(url, "hooks.slack.com") {
			return fmt.Errorf("invalid Slack webhook URL format")
		}
	case PlatformDiscord:
		if !strings.Contains(url, "discord.com/api/webhooks") {
			return fmt.Errorf("invalid Discord webhook URL format")
		}
	default:
		return fmt.Errorf("unknown platform: %s", platform)
	}

	return nil
}
