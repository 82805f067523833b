package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/boxdarr/boxdarr/internal/services/plex"
	"github.com/boxdarr/boxdarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// WatchSource supplies recently-finished items from the media server
type WatchSource interface {
	RecentlyWatched(ctx context.Context, since time.Time) ([]plex.WatchEvent, error)
	IsPlaying(ctx context.Context, ratingKey string) (bool, error)
}

// Detector finds newly finished movies that have no ledger record yet. It
// owns the poll cursor filter logic; transport retries live in the Plex
// client.
type Detector struct {
	db                 *models.Database
	source             WatchSource
	completionFraction float64
	dateThresholdHour  int
	logger             *logrus.Logger
}

// NewDetector creates a new watch-event detector
func NewDetector(db *models.Database, source WatchSource, completionFraction float64, dateThresholdHour int, logger *logrus.Logger) *Detector {
	return &Detector{
		db:                 db,
		source:             source,
		completionFraction: completionFraction,
		dateThresholdHour:  dateThresholdHour,
		logger:             logger,
	}
}

// Poll queries the history feed since the persisted cursor and returns fresh
// records in DETECTED state, plus the new cursor position. Re-polling the
// same underlying events is a no-op: anything with a ledger record is
// filtered out, so each item id is emitted as new at most once.
func (d *Detector) Poll(ctx context.Context) ([]*models.WatchRecord, time.Time, error) {
	cursor, err := d.db.GetCursor()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load poll cursor: %w", err)
	}

	events, err := d.source.RecentlyWatched(ctx, cursor)
	if err != nil {
		// Treated as "no new events this cycle"; the cursor survives and the
		// next tick retries the same window
		return nil, cursor, fmt.Errorf("history poll failed: %w", err)
	}

	newCursor := cursor
	var deferredAt time.Time
	var records []*models.WatchRecord

	for _, event := range events {
		if event.WatchedAt.After(newCursor) {
			newCursor = event.WatchedAt
		}

		if !event.Completed(d.completionFraction) {
			d.logger.WithFields(logrus.Fields{
				"item_id": event.ItemID,
				"title":   event.Title,
			}).Debug("Skipping partially watched item")
			continue
		}

		exists, err := d.db.HasRecord(event.ItemID)
		if err != nil {
			return nil, cursor, fmt.Errorf("ledger lookup failed for %s: %w", event.ItemID, err)
		}
		if exists {
			continue
		}

		playing, err := d.source.IsPlaying(ctx, event.ItemID)
		if err != nil {
			d.logger.WithError(err).Warn("Session check failed, assuming not playing")
		}
		if playing {
			d.logger.WithFields(logrus.Fields{
				"item_id": event.ItemID,
				"title":   event.Title,
			}).Info("Movie still playing, deferring to next cycle")
			if deferredAt.IsZero() || event.WatchedAt.Before(deferredAt) {
				deferredAt = event.WatchedAt
			}
			continue
		}

		records = append(records, d.newRecord(event))
	}

	// The cursor must not pass a deferred event or it would never re-emit
	if !deferredAt.IsZero() && !newCursor.Before(deferredAt) {
		newCursor = deferredAt.Add(-time.Second)
	}

	d.logger.WithFields(logrus.Fields{
		"events": len(events),
		"new":    len(records),
	}).Debug("Poll cycle filtered")

	return records, newCursor, nil
}

// newRecord builds the DETECTED ledger record for a watch event
func (d *Detector) newRecord(event plex.WatchEvent) *models.WatchRecord {
	return &models.WatchRecord{
		ItemID:          event.ItemID,
		Title:           event.Title,
		Year:            event.Year,
		TMDBID:          event.TMDBID,
		WatchedAt:       event.WatchedAt,
		AssignedDate:    utils.AssignDate(event.WatchedAt, d.dateThresholdHour),
		Status:          models.StatusDetected,
		DurationMinutes: event.DurationMinutes(),
		Directors:       event.Directors,
		Genres:          event.Genres,
		Summary:         event.Summary,
		ThumbURL:        event.ThumbURL,
		ViewCount:       event.ViewCount,
	}
}
