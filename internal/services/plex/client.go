package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/boxdarr/boxdarr/internal/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Client handles communication with the Plex server API
type Client struct {
	baseURL    string
	token      string
	accountID  int
	sectionKey string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Plex API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.PlexServerURL == "" {
		return nil, fmt.Errorf("plex server URL is required")
	}
	if cfg.PlexToken == "" {
		return nil, fmt.Errorf("plex token is required")
	}

	return &Client{
		baseURL:    cfg.PlexServerURL,
		token:      cfg.PlexToken,
		accountID:  cfg.PlexAccountID,
		sectionKey: cfg.PlexLibrarySection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// doRequest performs an authenticated GET against the Plex API and decodes the
// JSON response. Transient transport failures are retried with exponential
// backoff; callers treat an exhausted retry as "no data this cycle".
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	apiURL, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid plex URL: %w", err)
	}
	apiURL.Path = path
	if params != nil {
		apiURL.RawQuery = params.Encode()
	}
	fullURL := apiURL.String()

	c.logger.WithField("url", apiURL.Redacted()).Debug("Making Plex API request")

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Plex-Token", c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("plex request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("plex API returned status %d: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("plex API returned status %d: %s", resp.StatusCode, string(body))
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}
