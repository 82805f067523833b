package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boxdarr/boxdarr/internal/metrics"
	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/boxdarr/boxdarr/internal/services/letterboxd"
	"github.com/sirupsen/logrus"
)

// ErrDuplicateInteraction marks a rating callback for a record that is not
// waiting for one (already synced, still undetected, or unknown). It is
// acknowledged without side effects, not surfaced to the user as an error.
var ErrDuplicateInteraction = errors.New("duplicate or stale rating interaction")

// Notifier is the notification-surface collaborator boundary
type Notifier interface {
	DispatchNotification(ctx context.Context, record *models.WatchRecord) error
	ReportOutcome(ctx context.Context, record *models.WatchRecord, success bool, detail string) error
}

// DiarySubmitter is the diary-engine boundary consumed by the orchestrator
type DiarySubmitter interface {
	Submit(ctx context.Context, sub letterboxd.Submission) (*letterboxd.SubmissionResult, error)
}

// RatingOptions carries the optional diary fields collected with a rating
type RatingOptions struct {
	Liked   bool
	Rewatch bool
	Tags    string
	Review  string
}

// Reconciler drives records through the watch state machine:
//
//	detected -> notified -> rated -> synced
//	                              -> failed -> (retry) rated or notified
//
// Every transition is persisted before it counts as committed. A single
// mutex serializes ledger transitions so a poll cycle cannot race a rating
// callback for the same record; the diary engine serializes its own calls.
type Reconciler struct {
	db        *models.Database
	detector  *Detector
	notifier  Notifier
	submitter DiarySubmitter
	logger    *logrus.Logger

	mu sync.Mutex
}

// NewReconciler creates the orchestrator
func NewReconciler(db *models.Database, detector *Detector, notifier Notifier, submitter DiarySubmitter, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		db:        db,
		detector:  detector,
		notifier:  notifier,
		submitter: submitter,
		logger:    logger,
	}
}

// RunCycle executes one detector cycle: record new events, dispatch their
// notifications, advance the cursor. Called by the scheduler.
func (r *Reconciler) RunCycle(ctx context.Context) error {
	records, newCursor, err := r.detector.Poll(ctx)
	if err != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		return err
	}
	metrics.PollCycles.WithLabelValues("ok").Inc()

	for _, record := range records {
		if err := r.admitRecord(ctx, record); err != nil {
			// Storage failure is fatal for this cycle's mutations: bail out
			// without advancing the cursor so the event is re-emitted
			return err
		}
	}

	if err := r.db.SaveCursor(newCursor); err != nil {
		return fmt.Errorf("failed to advance poll cursor: %w", err)
	}

	// Records stuck in DETECTED from an earlier crash or failed dispatch
	return r.redispatchDetected(ctx)
}

// admitRecord persists a fresh DETECTED record and tries to notify. A failed
// dispatch leaves the record DETECTED; it is retried on the next cycle rather
// than skipped forever.
func (r *Reconciler) admitRecord(ctx context.Context, record *models.WatchRecord) error {
	r.mu.Lock()
	err := r.db.UpsertRecord(record)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	metrics.WatchesDetected.Inc()
	r.logger.WithFields(logrus.Fields{
		"item_id":       record.ItemID,
		"title":         record.Title,
		"assigned_date": record.AssignedDate.Format("2006-01-02"),
	}).Info("New watch detected")

	if err := r.dispatch(ctx, record); err != nil {
		r.logger.WithError(err).WithField("item_id", record.ItemID).
			Warn("Notification dispatch failed, record stays detected")
	}
	return nil
}

// dispatch delivers the notification and commits the NOTIFIED transition
// only after delivery is confirmed
func (r *Reconciler) dispatch(ctx context.Context, record *models.WatchRecord) error {
	if err := r.notifier.DispatchNotification(ctx, record); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	record.Status = models.StatusNotified
	record.NotifiedAt = &now
	if err := r.db.UpsertRecord(record); err != nil {
		return err
	}
	metrics.NotificationsDelivered.Inc()
	return nil
}

// redispatchDetected retries notification for records still in DETECTED
func (r *Reconciler) redispatchDetected(ctx context.Context) error {
	pending, err := r.db.GetPendingRecords()
	if err != nil {
		return fmt.Errorf("failed to load pending records: %w", err)
	}

	for _, record := range pending {
		if record.Status != models.StatusDetected {
			continue
		}
		if err := r.dispatch(ctx, record); err != nil {
			r.logger.WithError(err).WithField("item_id", record.ItemID).
				Warn("Redispatch failed, will retry next cycle")
		}
	}
	return nil
}

// ResumePending logs what survived a restart; dispatch retries happen on the
// first cycle. Called once at startup.
func (r *Reconciler) ResumePending() error {
	pending, err := r.db.GetPendingRecords()
	if err != nil {
		return fmt.Errorf("failed to load pending records: %w", err)
	}

	for _, record := range pending {
		r.logger.WithFields(logrus.Fields{
			"item_id": record.ItemID,
			"title":   record.Title,
			"status":  record.Status,
		}).Info("Resuming pending record")
	}
	return nil
}

// HandleRating is the rating-callback entry point. Exactly one successful
// callback drives a NOTIFIED record to SYNCED or FAILED; anything else is a
// duplicate or stale interaction.
func (r *Reconciler) HandleRating(ctx context.Context, itemID string, rating models.Rating, opts RatingOptions) error {
	if err := rating.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	record, err := r.db.GetRecord(itemID)
	if err != nil {
		r.mu.Unlock()
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: no record for item %s", ErrDuplicateInteraction, itemID)
		}
		return err
	}

	if record.Status != models.StatusNotified {
		status := record.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: item %s is %s", ErrDuplicateInteraction, itemID, status)
	}

	now := time.Now()
	record.Status = models.StatusRated
	record.Rating = rating
	record.Liked = opts.Liked
	record.Rewatch = opts.Rewatch
	record.Tags = opts.Tags
	record.Review = opts.Review
	record.RatedAt = &now
	if err := r.db.UpsertRecord(record); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"item_id": itemID,
		"title":   record.Title,
		"rating":  float64(rating),
	}).Info("Rating received")

	return r.sync(ctx, record)
}

// sync submits the diary entry for a RATED record and finalizes the ledger
// state from the confirmed result
func (r *Reconciler) sync(ctx context.Context, record *models.WatchRecord) error {
	result, err := r.submitter.Submit(ctx, letterboxd.Submission{
		Title:        record.Title,
		Year:         record.Year,
		TMDBID:       record.TMDBID,
		Rating:       record.Rating,
		AssignedDate: record.AssignedDate,
		Liked:        record.Liked,
		Rewatch:      record.Rewatch,
		Tags:         record.Tags,
		Review:       record.Review,
	})

	r.mu.Lock()
	now := time.Now()
	if err != nil {
		record.Status = models.StatusFailed
		record.FailureReason = err.Error()
	} else {
		record.Status = models.StatusSynced
		record.FailureReason = ""
		record.DiaryEntryURL = result.DiaryEntryURL
		record.SyncedAt = &now
	}
	if upsertErr := r.db.UpsertRecord(record); upsertErr != nil {
		r.mu.Unlock()
		return upsertErr
	}
	r.mu.Unlock()

	if err != nil {
		metrics.DiarySubmissions.WithLabelValues("failed").Inc()
		r.logger.WithError(err).WithFields(logrus.Fields{
			"item_id": record.ItemID,
			"title":   record.Title,
		}).Error("Diary sync failed")

		if reportErr := r.notifier.ReportOutcome(ctx, record, false, err.Error()); reportErr != nil {
			r.logger.WithError(reportErr).Warn("Failed to report sync failure")
		}
		return err
	}

	metrics.DiarySubmissions.WithLabelValues("synced").Inc()
	r.logger.WithFields(logrus.Fields{
		"item_id": record.ItemID,
		"title":   record.Title,
		"rating":  float64(record.Rating),
	}).Info("Diary entry synced")

	if reportErr := r.notifier.ReportOutcome(ctx, record, true, ""); reportErr != nil {
		r.logger.WithError(reportErr).Warn("Failed to report sync success")
	}
	return nil
}

// RetryFailed sweeps FAILED records. Records that already carry a rating are
// resubmitted; records that failed before a rating arrived are re-notified so
// the rating can be collected again. itemID narrows the sweep to one record
// ("" sweeps all).
func (r *Reconciler) RetryFailed(ctx context.Context, itemID string) (int, error) {
	r.mu.Lock()
	failed, err := r.db.GetFailedRecords()
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to load failed records: %w", err)
	}

	retried := 0
	for _, record := range failed {
		if itemID != "" && record.ItemID != itemID {
			continue
		}

		r.logger.WithFields(logrus.Fields{
			"item_id": record.ItemID,
			"title":   record.Title,
			"reason":  record.FailureReason,
		}).Info("Retrying failed record")

		if record.Rating != 0 {
			r.mu.Lock()
			record.Status = models.StatusRated
			err := r.db.UpsertRecord(record)
			r.mu.Unlock()
			if err != nil {
				return retried, err
			}
			if err := r.sync(ctx, record); err != nil {
				continue
			}
		} else {
			r.mu.Lock()
			record.Status = models.StatusDetected
			record.FailureReason = ""
			err := r.db.UpsertRecord(record)
			r.mu.Unlock()
			if err != nil {
				return retried, err
			}
			if err := r.dispatch(ctx, record); err != nil {
				r.logger.WithError(err).Warn("Retry dispatch failed")
				continue
			}
		}
		retried++
	}

	return retried, nil
}
