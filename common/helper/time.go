package helper

import (
	"time"
)

// GetTimestamp returns the current unix time in seconds.
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// CalcElapsedTime returns the elapsed time in milliseconds, at least 1 for any
// positive duration.
func CalcElapsedTime(start time.Time) int64 {
	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	if ms == 0 && elapsed > 0 {
		return 1
	}
	return ms
}
