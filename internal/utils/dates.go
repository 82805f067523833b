package utils

import "time"

// AssignDate maps a completion timestamp to the diary calendar day. A movie
// finished before the threshold hour counts as the previous day's viewing
// (1:30 AM is "last night"). thresholdHour is validated to 0-23 at config load.
func AssignDate(watchedAt time.Time, thresholdHour int) time.Time {
	day := time.Date(watchedAt.Year(), watchedAt.Month(), watchedAt.Day(), 0, 0, 0, 0, watchedAt.Location())
	if watchedAt.Hour() < thresholdHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}
