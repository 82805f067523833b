package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DiscordLogHook forwards warning-and-above log entries to a Discord webhook
// so operational failures surface in chat without tailing the daemon's logs.
type DiscordLogHook struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordLogHook creates a hook posting to the given webhook URL
func NewDiscordLogHook(webhookURL string) *DiscordLogHook {
	return &DiscordLogHook{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Levels returns the levels this hook fires on
func (h *DiscordLogHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
	}
}

// Fire posts the entry as a webhook embed. Delivery is fire-and-forget: a
// logging failure must never block or fail the operation being logged.
func (h *DiscordLogHook) Fire(entry *logrus.Entry) error {
	description := entry.Message
	for key, value := range entry.Data {
		description += fmt.Sprintf("\n`%s`: %v", key, value)
	}

	payload := map[string]interface{}{
		"username": "boxdarr",
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("[%s] boxdarr", entry.Level.String()),
				"description": description,
				"color":       embedColor(entry.Level),
				"timestamp":   entry.Time.UTC().Format(time.RFC3339),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	go func() {
		resp, err := h.httpClient.Post(h.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return
		}
		resp.Body.Close()
	}()

	return nil
}

func embedColor(level logrus.Level) int {
	if level <= logrus.ErrorLevel {
		return 0xe74c3c // red
	}
	return 0xe67e22 // orange
}
