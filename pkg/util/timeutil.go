package util

import "time"

// NowUTC is the clock used for report timestamps.
func NowUTC() time.Time {
	return time.Now().UTC()
}
