package letterboxd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Submission carries everything needed to create one dated diary entry
type Submission struct {
	Title        string
	Year         int
	TMDBID       string
	Rating       models.Rating
	AssignedDate time.Time
	Liked        bool
	Rewatch      bool
	Tags         string
	Review       string
}

// SubmissionResult reports a confirmed diary write
type SubmissionResult struct {
	FilmID        string
	DiaryEntryURL string
}

// Submit drives the authenticated session through search, form fill, and
// confirmation. The full sequence is retried once on transient transport
// errors; match failures, duplicates, and rejected credentials are terminal
// for the attempt. One submission runs at a time.
func (c *Client) Submit(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	if err := sub.Rating.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var result *SubmissionResult
	operation := func() error {
		res, err := c.submitOnce(ctx, sub)
		if err != nil {
			if errors.Is(err, ErrMovieNotFound) || errors.Is(err, ErrAmbiguousMatch) ||
				errors.Is(err, ErrDuplicateEntry) || errors.Is(err, ErrAuthentication) {
				return backoff.Permanent(err)
			}
			c.logger.WithError(err).Warn("Diary submission attempt failed, will retry once")
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// submitOnce runs one search-through-confirm pass, with at most one re-login
// when the session turns out to be expired
func (c *Client) submitOnce(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.resolveAndSave(ctx, session, sub)
	if errors.Is(err, errSessionExpired) {
		c.logger.Info("Letterboxd session expired, re-authenticating")
		c.session.expired = true
		session, err = c.ensureSession(ctx)
		if err != nil {
			return nil, err
		}
		result, err = c.resolveAndSave(ctx, session, sub)
	}
	return result, err
}

func (c *Client) resolveAndSave(ctx context.Context, session *Session, sub Submission) (*SubmissionResult, error) {
	filmID, err := c.resolveFilmID(ctx, sub.Title, sub.Year, sub.TMDBID)
	if err != nil {
		return nil, err
	}
	return c.saveDiaryEntry(ctx, session, filmID, sub)
}

// saveDiaryEntry posts the diary form and verifies the confirmation signal.
// A request that went out but came back without `result: true` is a failure,
// never an assumed success.
func (c *Client) saveDiaryEntry(ctx context.Context, session *Session, filmID string, sub Submission) (*SubmissionResult, error) {
	form := url.Values{}
	form.Set("json", "true")
	form.Set("__csrf", session.csrf)
	form.Set("viewingId", "")
	form.Set("filmId", filmID)
	form.Set("specifiedDate", "true")
	form.Set("viewingDateStr", sub.AssignedDate.Format("2006-01-02"))
	form.Set("rating", strconv.Itoa(sub.Rating.WireValue()))
	form.Set("liked", strconv.FormatBool(sub.Liked))
	form.Set("rewatch", strconv.FormatBool(sub.Rewatch))
	form.Set("tags", sub.Tags)
	form.Set("review", sub.Review)

	c.logger.WithFields(logrus.Fields{
		"film_id": filmID,
		"rating":  float64(sub.Rating),
		"date":    sub.AssignedDate.Format("2006-01-02"),
	}).Info("Saving diary entry")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/s/save-diary-entry", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create diary request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diary request failed: %w", err)
	}
	defer resp.Body.Close()

	var diaryResp struct {
		Result   bool     `json:"result"`
		Messages []string `json:"messages"`
		CSRF     string   `json:"csrf"`
		URL      string   `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&diaryResp); err != nil {
		// A logged-out session gets the HTML sign-in page here instead of JSON
		return nil, errSessionExpired
	}

	if !diaryResp.Result {
		message := strings.Join(diaryResp.Messages, "; ")
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "sign in") || strings.Contains(lower, "signed out"):
			return nil, errSessionExpired
		case strings.Contains(lower, "already") && strings.Contains(lower, "logged"):
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, message)
		default:
			return nil, fmt.Errorf("diary entry rejected: %s", message)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"film_id": filmID,
		"rating":  float64(sub.Rating),
	}).Info("Diary entry confirmed")

	entryURL := diaryResp.URL
	if entryURL != "" && !strings.HasPrefix(entryURL, "http") {
		entryURL = c.baseURL + entryURL
	}

	return &SubmissionResult{FilmID: filmID, DiaryEntryURL: entryURL}, nil
}
