package controllers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/boxdarr/boxdarr/internal/services/letterboxd"
	"github.com/boxdarr/boxdarr/internal/services/plex"
)

// fakeNotifier records dispatched notifications and outcome reports
type fakeNotifier struct {
	dispatched   []string
	outcomes     []bool
	failDispatch bool
}

func (f *fakeNotifier) DispatchNotification(ctx context.Context, record *models.WatchRecord) error {
	if f.failDispatch {
		return errors.New("webhook unavailable")
	}
	f.dispatched = append(f.dispatched, record.ItemID)
	return nil
}

func (f *fakeNotifier) ReportOutcome(ctx context.Context, record *models.WatchRecord, success bool, detail string) error {
	f.outcomes = append(f.outcomes, success)
	return nil
}

// fakeSubmitter records diary submissions and returns a canned result
type fakeSubmitter struct {
	submissions []letterboxd.Submission
	err         error
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub letterboxd.Submission) (*letterboxd.SubmissionResult, error) {
	f.submissions = append(f.submissions, sub)
	if f.err != nil {
		return nil, f.err
	}
	return &letterboxd.SubmissionResult{
		FilmID:        "51568",
		DiaryEntryURL: "https://letterboxd.com/testuser/film/arrival-2016/",
	}, nil
}

type reconcilerFixture struct {
	db        *models.Database
	source    *fakeSource
	notifier  *fakeNotifier
	submitter *fakeSubmitter
	rec       *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	db := newDetectorTestDB(t)
	source := &fakeSource{}
	notifier := &fakeNotifier{}
	submitter := &fakeSubmitter{}
	detector := NewDetector(db, source, 0.9, 7, testLogger())
	rec := NewReconciler(db, detector, notifier, submitter, testLogger())
	return &reconcilerFixture{db: db, source: source, notifier: notifier, submitter: submitter, rec: rec}
}

func (f *reconcilerFixture) record(t *testing.T, itemID string) *models.WatchRecord {
	t.Helper()
	record, err := f.db.GetRecord(itemID)
	if err != nil {
		t.Fatalf("get record %s failed: %v", itemID, err)
	}
	return record
}

func TestRunCycleNotifiesNewWatch(t *testing.T) {
	f := newReconcilerFixture(t)
	watchedAt := time.Now().Add(-time.Hour)
	f.source.events = []plex.WatchEvent{finishedEvent("100", "Arrival", watchedAt)}

	if err := f.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	record := f.record(t, "100")
	if record.Status != models.StatusNotified {
		t.Errorf("status = %s, want %s", record.Status, models.StatusNotified)
	}
	if record.NotifiedAt == nil {
		t.Error("NotifiedAt not set")
	}
	if len(f.notifier.dispatched) != 1 {
		t.Errorf("expected 1 notification, got %d", len(f.notifier.dispatched))
	}

	cursor, err := f.db.GetCursor()
	if err != nil {
		t.Fatalf("get cursor failed: %v", err)
	}
	if !cursor.Equal(watchedAt) {
		t.Errorf("cursor = %v, want %v", cursor, watchedAt)
	}

	// A second cycle over the same history does nothing
	if err := f.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(f.notifier.dispatched) != 1 {
		t.Errorf("duplicate notification dispatched: %v", f.notifier.dispatched)
	}
}

func TestRunCycleRetriesFailedDispatch(t *testing.T) {
	f := newReconcilerFixture(t)
	f.source.events = []plex.WatchEvent{finishedEvent("200", "Arrival", time.Now().Add(-time.Hour))}
	f.notifier.failDispatch = true

	if err := f.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	// Notification never went out, so the record must not claim NOTIFIED
	record := f.record(t, "200")
	if record.Status != models.StatusDetected {
		t.Errorf("status = %s, want %s", record.Status, models.StatusDetected)
	}

	f.notifier.failDispatch = false
	if err := f.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	record = f.record(t, "200")
	if record.Status != models.StatusNotified {
		t.Errorf("status after redispatch = %s, want %s", record.Status, models.StatusNotified)
	}
}

func seedNotified(t *testing.T, f *reconcilerFixture, itemID string) {
	t.Helper()
	now := time.Now()
	err := f.db.UpsertRecord(&models.WatchRecord{
		ItemID:       itemID,
		Title:        "Arrival",
		Year:         2016,
		TMDBID:       "329865",
		WatchedAt:    now,
		AssignedDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local),
		Status:       models.StatusNotified,
		NotifiedAt:   &now,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestHandleRatingSyncsDiaryEntry(t *testing.T) {
	f := newReconcilerFixture(t)
	seedNotified(t, f, "300")

	opts := RatingOptions{Liked: true, Tags: "plex", Review: "Stunning."}
	if err := f.rec.HandleRating(context.Background(), "300", 4.5, opts); err != nil {
		t.Fatalf("rating failed: %v", err)
	}

	record := f.record(t, "300")
	if record.Status != models.StatusSynced {
		t.Errorf("status = %s, want %s", record.Status, models.StatusSynced)
	}
	if record.DiaryEntryURL == "" || record.SyncedAt == nil {
		t.Errorf("sync metadata missing: %+v", record)
	}

	if len(f.submitter.submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(f.submitter.submissions))
	}
	sub := f.submitter.submissions[0]
	if sub.Title != "Arrival" || sub.Year != 2016 || sub.TMDBID != "329865" {
		t.Errorf("unexpected submission identity: %+v", sub)
	}
	if sub.Rating != 4.5 || !sub.Liked || sub.Tags != "plex" || sub.Review != "Stunning." {
		t.Errorf("rating options not forwarded: %+v", sub)
	}
	if !sub.AssignedDate.Equal(record.AssignedDate) {
		t.Errorf("assigned date not forwarded: %v", sub.AssignedDate)
	}

	if len(f.notifier.outcomes) != 1 || !f.notifier.outcomes[0] {
		t.Errorf("expected one success outcome report, got %v", f.notifier.outcomes)
	}
}

func TestHandleRatingDuplicateInteraction(t *testing.T) {
	f := newReconcilerFixture(t)
	seedNotified(t, f, "400")

	if err := f.rec.HandleRating(context.Background(), "400", 4, RatingOptions{}); err != nil {
		t.Fatalf("first rating failed: %v", err)
	}

	// Second callback on a synced record is acknowledged but inert
	err := f.rec.HandleRating(context.Background(), "400", 2, RatingOptions{})
	if !errors.Is(err, ErrDuplicateInteraction) {
		t.Fatalf("expected ErrDuplicateInteraction, got %v", err)
	}
	if len(f.submitter.submissions) != 1 {
		t.Errorf("duplicate callback reached the submitter: %d submissions", len(f.submitter.submissions))
	}
	record := f.record(t, "400")
	if record.Rating != 4 {
		t.Errorf("duplicate callback overwrote rating: %v", record.Rating)
	}

	// Unknown item id is also a stale interaction
	err = f.rec.HandleRating(context.Background(), "unknown", 3, RatingOptions{})
	if !errors.Is(err, ErrDuplicateInteraction) {
		t.Errorf("expected ErrDuplicateInteraction for unknown item, got %v", err)
	}
}

func TestHandleRatingRejectsInvalidRating(t *testing.T) {
	f := newReconcilerFixture(t)
	seedNotified(t, f, "500")

	if err := f.rec.HandleRating(context.Background(), "500", 3.3, RatingOptions{}); err == nil {
		t.Fatal("expected validation error")
	}
	record := f.record(t, "500")
	if record.Status != models.StatusNotified {
		t.Errorf("invalid rating mutated the record: %s", record.Status)
	}
}

func TestHandleRatingSubmissionFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	seedNotified(t, f, "600")
	f.submitter.err = letterboxd.ErrMovieNotFound

	err := f.rec.HandleRating(context.Background(), "600", 3.5, RatingOptions{})
	if !errors.Is(err, letterboxd.ErrMovieNotFound) {
		t.Fatalf("expected submission error, got %v", err)
	}

	record := f.record(t, "600")
	if record.Status != models.StatusFailed {
		t.Errorf("status = %s, want %s", record.Status, models.StatusFailed)
	}
	if record.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
	if record.SyncedAt != nil || record.DiaryEntryURL != "" {
		t.Errorf("failed record carries sync metadata: %+v", record)
	}
	if len(f.notifier.outcomes) != 1 || f.notifier.outcomes[0] {
		t.Errorf("expected one failure outcome report, got %v", f.notifier.outcomes)
	}
}

func TestRetryFailedResubmitsRatedRecord(t *testing.T) {
	f := newReconcilerFixture(t)
	seedNotified(t, f, "700")
	f.submitter.err = errors.New("letterboxd down")

	if err := f.rec.HandleRating(context.Background(), "700", 4, RatingOptions{}); err == nil {
		t.Fatal("expected submission error")
	}

	f.submitter.err = nil
	retried, err := f.rec.RetryFailed(context.Background(), "")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried != 1 {
		t.Errorf("retried = %d, want 1", retried)
	}

	record := f.record(t, "700")
	if record.Status != models.StatusSynced {
		t.Errorf("status after retry = %s, want %s", record.Status, models.StatusSynced)
	}
	if record.FailureReason != "" {
		t.Errorf("failure reason not cleared: %q", record.FailureReason)
	}
	if len(f.submitter.submissions) != 2 {
		t.Errorf("expected 2 submission attempts, got %d", len(f.submitter.submissions))
	}
}

func TestRetryFailedRenotifiesUnratedRecord(t *testing.T) {
	f := newReconcilerFixture(t)
	if err := f.db.UpsertRecord(&models.WatchRecord{
		ItemID:        "800",
		Title:         "Arrival",
		Status:        models.StatusFailed,
		FailureReason: "notification expired",
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	retried, err := f.rec.RetryFailed(context.Background(), "800")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried != 1 {
		t.Errorf("retried = %d, want 1", retried)
	}

	record := f.record(t, "800")
	if record.Status != models.StatusNotified {
		t.Errorf("status = %s, want %s", record.Status, models.StatusNotified)
	}
	if len(f.submitter.submissions) != 0 {
		t.Error("unrated record should not be submitted")
	}
	if len(f.notifier.dispatched) != 1 {
		t.Errorf("expected one re-notification, got %d", len(f.notifier.dispatched))
	}
}

func TestWatchLifecycleEndToEnd(t *testing.T) {
	f := newReconcilerFixture(t)

	// Finished at 1 AM, so the diary day is the previous calendar day
	watchedAt := time.Date(2024, 3, 16, 1, 0, 0, 0, time.Local)
	event := finishedEvent("900", "Arrival", watchedAt)
	event.TMDBID = "329865"
	f.source.events = []plex.WatchEvent{event}

	if err := f.rec.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if f.record(t, "900").Status != models.StatusNotified {
		t.Fatal("record not notified after cycle")
	}

	if err := f.rec.HandleRating(context.Background(), "900", 4.5, RatingOptions{Liked: true}); err != nil {
		t.Fatalf("rating failed: %v", err)
	}

	record := f.record(t, "900")
	if record.Status != models.StatusSynced {
		t.Fatalf("status = %s, want %s", record.Status, models.StatusSynced)
	}

	sub := f.submitter.submissions[0]
	wantDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	if !sub.AssignedDate.Equal(wantDate) {
		t.Errorf("diary date = %v, want %v", sub.AssignedDate, wantDate)
	}
	if sub.Rating.WireValue() != 9 {
		t.Errorf("wire rating = %d, want 9", sub.Rating.WireValue())
	}
}
