package letterboxd

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/boxdarr/boxdarr/internal/config"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://letterboxd.com"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

	// Per-request bound; page-ready is signaled by the response body, not by
	// fixed sleeps
	requestTimeout = 15 * time.Second
)

// Client drives the session-authenticated Letterboxd web surface. One
// submission is in flight at a time: the underlying session cannot handle
// concurrent form interactions.
type Client struct {
	username       string
	password       string
	baseURL        string
	matchThreshold float64

	httpClient *http.Client
	filmIDs    *gocache.Cache // title/year/tmdb -> film id, survives submit retries
	logger     *logrus.Logger

	mu      sync.Mutex // serializes submissions
	session *Session
}

// NewClient creates a new Letterboxd client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.LetterboxdUsername == "" || cfg.LetterboxdPassword == "" {
		return nil, fmt.Errorf("letterboxd credentials are required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		username:       cfg.LetterboxdUsername,
		password:       cfg.LetterboxdPassword,
		baseURL:        defaultBaseURL,
		matchThreshold: cfg.MatchThreshold,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
		},
		filmIDs: gocache.New(24*time.Hour, time.Hour),
		logger:  logger,
	}, nil
}
