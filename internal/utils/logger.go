package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a new configured logger. If webhookURL is non-empty,
// warnings and errors are also forwarded to that Discord webhook.
func NewLogger(level string, webhookURL string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Parse log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if webhookURL != "" {
		logger.AddHook(NewDiscordLogHook(webhookURL))
	}

	return logger
}
