package models

import "time"

// WatchRecord tracks one finished movie from detection through diary sync.
// Records are never deleted; the ledger doubles as an audit trail.
type WatchRecord struct {
	ItemID string `boltholdKey:"ItemID"` // Plex rating key, unique per library item

	Title  string
	Year   int
	TMDBID string // TMDb ID from the Plex GUID, used for direct Letterboxd lookup

	WatchedAt    time.Time // Completion time reported by Plex
	AssignedDate time.Time // Diary calendar day after the threshold-hour rule

	Status Status `boltholdIndex:"Status"`
	Rating Rating // Set once the user responds, 0 until then

	// Optional diary fields collected with the rating
	Liked   bool
	Rewatch bool
	Tags    string
	Review  string

	DiaryEntryURL string
	FailureReason string

	// Embed metadata from Plex
	DurationMinutes int
	Directors       []string
	Genres          []string
	Summary         string
	ThumbURL        string
	ViewCount       int

	CreatedAt  time.Time
	UpdatedAt  time.Time
	NotifiedAt *time.Time
	RatedAt    *time.Time
	SyncedAt   *time.Time
}

// Pending reports whether the record still needs attention after a restart
func (r *WatchRecord) Pending() bool {
	return r.Status != StatusSynced && r.Status != StatusFailed
}

// PollCursor persists the high-water mark of the Plex history poll
type PollCursor struct {
	ID            string `boltholdKey:"ID"`
	LastWatchedAt time.Time
	UpdatedAt     time.Time
}

// cursorKey is the fixed key of the single cursor record
const cursorKey = "plex-history"
