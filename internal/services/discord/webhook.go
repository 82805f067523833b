package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boxdarr/boxdarr/internal/config"
	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	colorOrange = 0xe67e22
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
)

// Notifier posts watch notifications and sync outcomes to a Discord webhook.
// The interactive rating component lives outside this service and calls back
// over the HTTP API; this side only needs outbound webhook delivery.
type Notifier struct {
	webhookURL string
	userID     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewNotifier creates a webhook-backed notifier
func NewNotifier(cfg *config.Config, logger *logrus.Logger) (*Notifier, error) {
	if cfg.DiscordWebhookURL == "" {
		return nil, fmt.Errorf("discord webhook URL is required")
	}

	return &Notifier{
		webhookURL: cfg.DiscordWebhookURL,
		userID:     cfg.DiscordUserID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Image       *struct {
		URL string `json:"url"`
	} `json:"image,omitempty"`
	Footer *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

// DispatchNotification sends the watched-movie embed and reports delivery.
// A non-2xx response means the notification was not delivered; the caller
// must not advance the record past DETECTED in that case.
func (n *Notifier) DispatchNotification(ctx context.Context, record *models.WatchRecord) error {
	e := embed{
		Title:     fmt.Sprintf("%s (%d)", record.Title, record.Year),
		Color:     colorOrange,
		Timestamp: record.WatchedAt.UTC().Format(time.RFC3339),
		Footer: &struct {
			Text string `json:"text"`
		}{Text: "Watched — rate it to log on Letterboxd"},
	}

	if record.Summary != "" {
		e.Description = shortenSummary(record.Summary, 300, 400)
	}
	if record.DurationMinutes > 0 {
		hours, minutes := record.DurationMinutes/60, record.DurationMinutes%60
		duration := fmt.Sprintf("%dmin", minutes)
		if hours > 0 {
			duration = fmt.Sprintf("%dh %dmin", hours, minutes)
		}
		e.Fields = append(e.Fields, embedField{Name: "Duration", Value: duration, Inline: true})
	}
	if len(record.Genres) > 0 {
		genres := record.Genres
		if len(genres) > 3 {
			genres = genres[:3]
		}
		e.Fields = append(e.Fields, embedField{Name: "Genre", Value: strings.Join(genres, ", "), Inline: true})
	}
	if len(record.Directors) > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Director", Value: strings.Join(record.Directors, ", "), Inline: true})
	}
	if record.ViewCount > 1 {
		e.Fields = append(e.Fields, embedField{Name: "View count", Value: fmt.Sprintf("%d", record.ViewCount), Inline: true})
	}
	if record.ThumbURL != "" {
		e.Image = &struct {
			URL string `json:"url"`
		}{URL: record.ThumbURL}
	}

	payload := webhookPayload{Embeds: []embed{e}}
	if n.userID != "" {
		payload.Content = fmt.Sprintf("<@%s>", n.userID)
	}

	if err := n.post(ctx, payload); err != nil {
		return fmt.Errorf("notification dispatch failed: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"item_id": record.ItemID,
		"title":   record.Title,
	}).Info("Notification delivered")
	return nil
}

// ReportOutcome tells the user how the diary sync ended
func (n *Notifier) ReportOutcome(ctx context.Context, record *models.WatchRecord, success bool, detail string) error {
	e := embed{
		Color:     colorGreen,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if success {
		e.Title = "Rating logged"
		e.Description = fmt.Sprintf("**%s (%d)** rated **%.1f ★** on Letterboxd for %s.",
			record.Title, record.Year, float64(record.Rating), record.AssignedDate.Format("2006-01-02"))
		if record.DiaryEntryURL != "" {
			e.Description += "\n" + record.DiaryEntryURL
		}
	} else {
		e.Title = "Diary entry failed"
		e.Color = colorRed
		e.Description = fmt.Sprintf("**%s (%d)**: %s", record.Title, record.Year, truncate(detail, 300))
	}

	if err := n.post(ctx, webhookPayload{Embeds: []embed{e}}); err != nil {
		return fmt.Errorf("outcome report failed: %w", err)
	}
	return nil
}

// post delivers a webhook payload; wait=true makes Discord acknowledge the
// message instead of queueing it, which is the delivery ack the orchestrator
// relies on
func (n *Notifier) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL+"?wait=true", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// shortenSummary cuts a plot summary at a sentence boundary between min and
// max runes. Cuts happen on rune boundaries so non-ASCII summaries never leak
// invalid UTF-8 into the embed.
func shortenSummary(summary string, min, max int) string {
	runes := []rune(summary)
	if len(runes) <= max {
		return strings.TrimSpace(summary)
	}

	head := string(runes[:min])
	segment := string(runes[min:max])
	if idx := strings.LastIndex(segment, "."); idx != -1 {
		return strings.TrimSpace(head + segment[:idx+1])
	}
	if idx := strings.LastIndex(head, "."); idx != -1 {
		return strings.TrimSpace(head[:idx+1])
	}
	return strings.TrimSpace(head + segment)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
