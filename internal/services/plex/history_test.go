package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const historyJSON = `{"MediaContainer":{"Metadata":[
{"ratingKey":"100","key":"/library/metadata/100","type":"movie","title":"Arrival","year":2016,"viewedAt":1710540000},
{"ratingKey":"200","key":"/library/metadata/200","type":"episode","title":"Pilot","year":2020,"viewedAt":1710543600},
{"ratingKey":"300","key":"/library/metadata/300","type":"movie","title":"Old Watch","year":2010,"viewedAt":1600000000}
]}}`

const arrivalMetadataJSON = `{"MediaContainer":{"Metadata":[
{"ratingKey":"100","title":"Arrival","year":2016,"duration":6966000,"viewOffset":6800000,"viewCount":1,
"summary":"A linguist is recruited by the military.",
"thumb":"/library/metadata/100/thumb/1710000000",
"Guid":[{"id":"imdb://tt2543164"},{"id":"tmdb://329865"}],
"Director":[{"tag":"Denis Villeneuve"}],
"Genre":[{"tag":"Science Fiction"},{"tag":"Drama"}]}
]}}`

const sessionsJSON = `{"MediaContainer":{"Metadata":[
{"ratingKey":"100","type":"movie"},
{"ratingKey":"555","type":"episode"}
]}}`

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status/sessions/history/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, historyJSON)
	})
	mux.HandleFunc("/library/metadata/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, arrivalMetadataJSON)
	})
	mux.HandleFunc("/library/metadata/300", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/status/sessions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sessionsJSON)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := &Client{
		baseURL:    server.URL,
		token:      "test-token",
		accountID:  1,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     testLogger(),
	}
	return server, client
}

func TestRecentlyWatched(t *testing.T) {
	server, client := newTestServer(t)

	since := time.Unix(1700000000, 0)
	events, err := client.RecentlyWatched(context.Background(), since)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	// The episode is not a movie and the old watch predates the cursor
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.ItemID != "100" || event.Title != "Arrival" || event.Year != 2016 {
		t.Errorf("unexpected event identity: %+v", event)
	}
	if event.TMDBID != "329865" {
		t.Errorf("tmdb id = %s, want 329865", event.TMDBID)
	}
	if !event.WatchedAt.Equal(time.Unix(1710540000, 0)) {
		t.Errorf("watched at = %v", event.WatchedAt)
	}
	if event.DurationMinutes() != 116 {
		t.Errorf("duration = %d minutes, want 116", event.DurationMinutes())
	}
	if len(event.Directors) != 1 || event.Directors[0] != "Denis Villeneuve" {
		t.Errorf("directors = %v", event.Directors)
	}
	if len(event.Genres) != 2 {
		t.Errorf("genres = %v", event.Genres)
	}
	if event.ThumbURL != server.URL+"/library/metadata/100/thumb/1710000000?X-Plex-Token=test-token" {
		t.Errorf("thumb url = %s", event.ThumbURL)
	}
}

func TestRecentlyWatchedKeepsHistoryRowOnMetadataFailure(t *testing.T) {
	_, client := newTestServer(t)

	// Zero cursor lets the deleted item ("300") through the time filter
	events, err := client.RecentlyWatched(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	deleted := events[1]
	if deleted.ItemID != "300" || deleted.Title != "Old Watch" {
		t.Errorf("unexpected fallback event: %+v", deleted)
	}
	// The history row alone still counts as a completed view
	if !deleted.Completed(0.9) {
		t.Error("fallback event should count as completed")
	}
}

func TestIsPlaying(t *testing.T) {
	_, client := newTestServer(t)

	playing, err := client.IsPlaying(context.Background(), "100")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !playing {
		t.Error("item 100 should be playing")
	}

	playing, err = client.IsPlaying(context.Background(), "999")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if playing {
		t.Error("item 999 should not be playing")
	}

	// An episode session never blocks a movie with the same key
	playing, err = client.IsPlaying(context.Background(), "555")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if playing {
		t.Error("episode session misread as a playing movie")
	}
}

func TestWatchEventCompleted(t *testing.T) {
	tests := []struct {
		name     string
		event    WatchEvent
		fraction float64
		want     bool
	}{
		{"view count ticked", WatchEvent{ViewCount: 1}, 0.9, true},
		{"offset past fraction", WatchEvent{DurationMs: 100000, ViewOffsetMs: 95000}, 0.9, true},
		{"offset exactly at fraction", WatchEvent{DurationMs: 100000, ViewOffsetMs: 90000}, 0.9, true},
		{"offset below fraction", WatchEvent{DurationMs: 100000, ViewOffsetMs: 50000}, 0.9, false},
		{"no signals", WatchEvent{DurationMs: 100000}, 0.9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Completed(tt.fraction); got != tt.want {
				t.Errorf("Completed(%v) = %v, want %v", tt.fraction, got, tt.want)
			}
		})
	}
}
