package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shareguard/system"
)

// WebhookService handles Discord webhook notifications
type WebhookService struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents a footer in a Discord embed
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// NewWebhookService creates a new WebhookService
func NewWebhookService() *WebhookService {
	return &WebhookService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetWebhookURL sets the Discord webhook URL
func (w *WebhookService) SetWebhookURL(url string) {
	w.webhookURL = url
	w.enabled = url != ""
}

// IsEnabled returns whether the webhook is enabled
func (w *WebhookService) IsEnabled() bool {
	return w.enabled && w.webhookURL != ""
}

// Discord color constants
const (
	ColorRed    = 0xFF0000 // Threat/Error
	ColorOrange = 0xFFAA00 // Warning/Blacklist
	ColorGreen  = 0x00FF00 // Success
	ColorBlue   = 0x00AAFF // Info
)

// SendThreatAlert notifies operators about a high or critical threat and
// the automated response taken.
func (w *WebhookService) SendThreatAlert(sourceIP, level, action string) error {
	if !w.IsEnabled() {
		return nil
	}

	embed := DiscordEmbed{
		Title:       "🚨 Threat Detected",
		Description: fmt.Sprintf("Suspicious access activity from **%s**", sourceIP),
		Color:       ColorRed,
		Fields: []DiscordEmbedField{
			{Name: "Source IP", Value: fmt.Sprintf("`%s`", sourceIP), Inline: true},
			{Name: "Threat Level", Value: level, Inline: true},
			{Name: "Action", Value: action, Inline: false},
		},
		Footer: &DiscordEmbedFooter{
			Text: "ShareGuard Security",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(embed)
}

// SendBlacklistAlert notifies operators that an IP was blacklisted.
func (w *WebhookService) SendBlacklistAlert(sourceIP, country, reason string) error {
	if !w.IsEnabled() {
		return nil
	}

	embed := DiscordEmbed{
		Title:       "🛡️ IP Blacklisted",
		Description: fmt.Sprintf("IP address **%s** has been blacklisted", sourceIP),
		Color:       ColorOrange,
		Fields: []DiscordEmbedField{
			{Name: "Source IP", Value: fmt.Sprintf("`%s`", sourceIP), Inline: true},
			{Name: "Country", Value: country, Inline: true},
			{Name: "Reason", Value: reason, Inline: false},
		},
		Footer: &DiscordEmbedFooter{
			Text: "ShareGuard Security",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(embed)
}

// SendSystemAlert sends a generic titled message.
func (w *WebhookService) SendSystemAlert(title, description string, color int) error {
	if !w.IsEnabled() {
		return nil
	}

	embed := DiscordEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Footer: &DiscordEmbedFooter{
			Text: "ShareGuard Security",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(embed)
}

// SendTestAlert sends a test notification to verify webhook connectivity
func (w *WebhookService) SendTestAlert() error {
	if !w.IsEnabled() {
		return fmt.Errorf("webhook not configured")
	}

	embed := DiscordEmbed{
		Title:       "✅ Webhook Test",
		Description: "Discord webhook is configured correctly!",
		Color:       ColorGreen,
		Fields: []DiscordEmbedField{
			{Name: "Status", Value: "Connected", Inline: true},
			{Name: "Server Time", Value: time.Now().Format("2006-01-02 15:04:05"), Inline: true},
		},
		Footer: &DiscordEmbedFooter{
			Text: "ShareGuard Security",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(embed)
}

// sendEmbed sends a Discord embed message
func (w *WebhookService) sendEmbed(embed DiscordEmbed) error {
	payload := DiscordWebhookPayload{
		Username: "ShareGuard",
		Embeds:   []DiscordEmbed{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest("POST", w.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	system.Info("Discord webhook sent successfully")
	return nil
}
