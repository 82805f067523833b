package models

import "fmt"

// Status represents the processing state of a watch record
type Status string

const (
	StatusDetected Status = "detected" // Seen in Plex history, nothing dispatched yet
	StatusNotified Status = "notified" // Discord notification delivered, waiting for a rating
	StatusRated    Status = "rated"    // Rating received, diary submission in progress
	StatusSynced   Status = "synced"   // Diary entry confirmed on Letterboxd
	StatusFailed   Status = "failed"   // Terminal until retried by the operator or the sweep
)

// Rating is a Letterboxd star rating (0.5 to 5.0 in half-star steps)
type Rating float64

// Validate checks the rating is on the half-star scale
func (r Rating) Validate() error {
	v := float64(r)
	if v < 0.5 || v > 5.0 {
		return fmt.Errorf("rating %.1f out of range (0.5-5.0)", v)
	}
	if v*2 != float64(int(v*2)) {
		return fmt.Errorf("rating %.1f is not a half-star step", v)
	}
	return nil
}

// WireValue converts the star rating to Letterboxd's 1-10 form scale
func (r Rating) WireValue() int {
	return int(float64(r) * 2)
}
