package util

import "time"

// NowMillis returns the current wall clock in milliseconds since epoch,
// the timestamp unit used across the price pipeline.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FromMillis converts a millisecond epoch timestamp to time.Time.
// Second-precision timestamps (from sources that truncate) are detected
// and scaled up.
func FromMillis(ms int64) time.Time {
	if ms > 0 && ms < 1e11 { // seconds, not millis
		ms *= 1000
	}
	return time.UnixMilli(ms)
}
