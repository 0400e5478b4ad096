// Package teams posts conversation excerpts to a Microsoft Teams incoming
// webhook as an Adaptive Card.
package teams

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

	"github.com/rivo/uniseg"

	"github.com/zjrosen/codexwui/internal/log"
)

// MaxContentLength is the number of characters kept before truncation.
// Teams rejects payloads over 28KB.
const MaxContentLength = 24000

const footer = "Sent from Codex WUI"

// ErrEmptyWebhook is returned when no webhook URL is configured.
var ErrEmptyWebhook = errors.New("webhook URL is empty")

// Client sends Adaptive Card messages.
type Client struct {
	http *http.Client
}

// NewClient creates a Client. A nil httpClient uses a 30s timeout client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient}
}

type textBlock struct {
	Type                string `json:"type"`
	Text                string `json:"text"`
	Weight              string `json:"weight,omitempty"`
	Size                string `json:"size,omitempty"`
	Wrap                bool   `json:"wrap,omitempty"`
	FontType            string `json:"fontType,omitempty"`
	IsSubtle            bool   `json:"isSubtle,omitempty"`
	HorizontalAlignment string `json:"horizontalAlignment,omitempty"`
}

type card struct {
	Schema  string      `json:"$schema"`
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []textBlock `json:"body"`
}

type attachment struct {
	ContentType string  `json:"contentType"`
	ContentURL  *string `json:"contentUrl"`
	Content     card    `json:"content"`
}

type message struct {
	Type        string       `json:"type"`
	Attachments []attachment `json:"attachments"`
}

// BuildMessage returns the webhook payload for title and content.
func BuildMessage(title, content string) any {
	return message{
		Type: "message",
		Attachments: []attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: card{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body: []textBlock{
					{Type: "TextBlock", Text: title, Weight: "Bolder", Size: "Medium", Wrap: true},
					{Type: "TextBlock", Text: Truncate(content, MaxContentLength), Wrap: true, FontType: "Default"},
					{Type: "TextBlock", Text: footer, IsSubtle: true, Size: "Small", HorizontalAlignment: "Right"},
				},
			},
		}},
	}
}

// Truncate cuts s to limit grapheme clusters and appends a marker with the
// original length. Shorter strings are returned unchanged.
func Truncate(s string, limit int) string {
	total := uniseg.GraphemeClusterCount(s)
	if total <= limit {
		return s
	}

	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for n := 0; n < limit && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	fmt.Fprintf(&b, "...\n\n(truncated, original length: %d chars)", total)
	return b.String()
}

// Send posts title and content to webhookURL and returns the HTTP status.
func (c *Client) Send(ctx context.Context, webhookURL, title, content string) (int, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return 0, ErrEmptyWebhook
	}

	body, err := json.Marshal(BuildMessage(title, content))
	if err != nil {
		return 0, fmt.Errorf("encoding card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Warn(log.CatTeams, "webhook rejected message", "status", resp.StatusCode)
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
	}
	log.Info(log.CatTeams, "message sent", "status", resp.StatusCode, "bytes", len(body))
	return resp.StatusCode, nil
}
