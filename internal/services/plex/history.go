package plex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WatchEvent is one finished (or nearly finished) movie from the Plex history
type WatchEvent struct {
	ItemID    string // Plex rating key
	Title     string
	Year      int
	TMDBID    string
	WatchedAt time.Time

	// Completion signal inputs
	DurationMs   int64
	ViewOffsetMs int64
	ViewCount    int

	// Embed metadata
	Directors []string
	Genres    []string
	Summary   string
	ThumbURL  string
}

// DurationMinutes returns the runtime in whole minutes
func (e WatchEvent) DurationMinutes() int {
	return int(e.DurationMs / 60000)
}

// Completed reports whether Plex considers the item finished: either the view
// counter ticked (Plex's own scrobble signal) or the playback offset reached
// the configured fraction of the duration. Offset alone below the fraction
// means a partial watch.
func (e WatchEvent) Completed(fraction float64) bool {
	if e.ViewCount > 0 {
		return true
	}
	if e.DurationMs > 0 && e.ViewOffsetMs > 0 {
		return float64(e.ViewOffsetMs)/float64(e.DurationMs) >= fraction
	}
	return false
}

// historyContainer mirrors the Plex /status/sessions/history/all response
type historyContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey        string `json:"ratingKey"`
			Key              string `json:"key"`
			Type             string `json:"type"`
			Title            string `json:"title"`
			Year             int    `json:"year"`
			ViewedAt         int64  `json:"viewedAt"`
			LibrarySectionID string `json:"librarySectionID"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// metadataContainer mirrors the Plex /library/metadata/{key} response
type metadataContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey  string `json:"ratingKey"`
			Title      string `json:"title"`
			Year       int    `json:"year"`
			Duration   int64  `json:"duration"`
			ViewOffset int64  `json:"viewOffset"`
			ViewCount  int    `json:"viewCount"`
			Summary    string `json:"summary"`
			Thumb      string `json:"thumb"`
			Guid       []struct {
				ID string `json:"id"`
			} `json:"Guid"`
			Director []struct {
				Tag string `json:"tag"`
			} `json:"Director"`
			Genre []struct {
				Tag string `json:"tag"`
			} `json:"Genre"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// sessionsContainer mirrors the Plex /status/sessions response
type sessionsContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey string `json:"ratingKey"`
			Type      string `json:"type"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// RecentlyWatched returns movie watch events recorded after the given cursor,
// enriched with library metadata, ordered as Plex returns them
func (c *Client) RecentlyWatched(ctx context.Context, since time.Time) ([]WatchEvent, error) {
	params := url.Values{}
	params.Set("accountID", strconv.Itoa(c.accountID))
	params.Set("sort", "viewedAt:asc")
	if !since.IsZero() {
		params.Set("viewedAt>", strconv.FormatInt(since.Unix(), 10))
	}
	if c.sectionKey != "" {
		params.Set("librarySectionID", c.sectionKey)
	}

	var history historyContainer
	if err := c.doRequest(ctx, "/status/sessions/history/all", params, &history); err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}

	var events []WatchEvent
	for _, entry := range history.MediaContainer.Metadata {
		if entry.Type != "movie" || entry.RatingKey == "" {
			continue
		}

		watchedAt := time.Unix(entry.ViewedAt, 0)
		if !since.IsZero() && !watchedAt.After(since) {
			continue
		}

		event, err := c.movieDetails(ctx, entry.RatingKey)
		if err != nil {
			// The item may have been deleted from the library since it was
			// watched; keep what the history row gave us.
			c.logger.WithError(err).WithField("rating_key", entry.RatingKey).
				Warn("Failed to fetch movie metadata, using history entry only")
			event = WatchEvent{ItemID: entry.RatingKey, Title: entry.Title, Year: entry.Year, ViewCount: 1}
		}
		event.WatchedAt = watchedAt

		events = append(events, event)
	}

	c.logger.WithField("count", len(events)).Debug("Plex history query completed")
	return events, nil
}

// movieDetails fetches full metadata for a library item
func (c *Client) movieDetails(ctx context.Context, ratingKey string) (WatchEvent, error) {
	var meta metadataContainer
	if err := c.doRequest(ctx, "/library/metadata/"+ratingKey, nil, &meta); err != nil {
		return WatchEvent{}, err
	}
	if len(meta.MediaContainer.Metadata) == 0 {
		return WatchEvent{}, fmt.Errorf("no metadata for rating key %s", ratingKey)
	}

	m := meta.MediaContainer.Metadata[0]
	event := WatchEvent{
		ItemID:       m.RatingKey,
		Title:        m.Title,
		Year:         m.Year,
		DurationMs:   m.Duration,
		ViewOffsetMs: m.ViewOffset,
		ViewCount:    m.ViewCount,
		Summary:      m.Summary,
	}

	if m.Thumb != "" {
		event.ThumbURL = strings.TrimRight(c.baseURL, "/") + m.Thumb + "?X-Plex-Token=" + c.token
	}
	for _, guid := range m.Guid {
		if id, ok := strings.CutPrefix(guid.ID, "tmdb://"); ok {
			event.TMDBID = id
		}
	}
	for _, d := range m.Director {
		event.Directors = append(event.Directors, d.Tag)
	}
	for _, g := range m.Genre {
		event.Genres = append(event.Genres, g.Tag)
	}

	return event, nil
}

// IsPlaying reports whether the item is part of an active playback session.
// Notification is held back while the movie is still on screen.
func (c *Client) IsPlaying(ctx context.Context, ratingKey string) (bool, error) {
	var sessions sessionsContainer
	if err := c.doRequest(ctx, "/status/sessions", nil, &sessions); err != nil {
		return false, fmt.Errorf("sessions query failed: %w", err)
	}

	for _, session := range sessions.MediaContainer.Metadata {
		if session.RatingKey == ratingKey && session.Type == "movie" {
			return true, nil
		}
	}
	return false, nil
}
