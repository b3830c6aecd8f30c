package live

import "time"

// NextRun is the next interval boundary after now plus buffer, so a cycle starts
// shortly after the venue has closed the bar. interval <= 0 returns now.
func NextRun(now time.Time, interval, buffer time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	return now.Truncate(interval).Add(interval).Add(buffer)
}
