package letterboxd

import "errors"

var (
	// ErrAuthentication indicates the Letterboxd login was rejected
	ErrAuthentication = errors.New("letterboxd authentication failed")

	// ErrMovieNotFound indicates no catalog entry matched above the
	// similarity threshold. Never retried: submitting against a guessed
	// film would corrupt the diary.
	ErrMovieNotFound = errors.New("movie not found on letterboxd")

	// ErrAmbiguousMatch indicates multiple catalog entries scored equally
	// above the threshold with no exact winner
	ErrAmbiguousMatch = errors.New("ambiguous letterboxd match")

	// ErrDuplicateEntry indicates Letterboxd rejected the entry as already
	// logged for that day
	ErrDuplicateEntry = errors.New("duplicate diary entry")

	// errSessionExpired is the internal signal that a request hit the
	// logged-out page signature; handled by one re-login per submission
	errSessionExpired = errors.New("letterboxd session expired")
)
