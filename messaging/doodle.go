package messaging

import "time"

// CanSendDoodleToday reports whether lastSentAt falls before the start of
// the local day containing now. A zero lastSentAt always allows a send.
func CanSendDoodleToday(lastSentAt time.Time, now time.Time) bool {
	if lastSentAt.IsZero() {
		return true
	}
	return lastSentAt.Before(startOfDay(now))
}

// NextResetTime is the next local midnight strictly after now.
func NextResetTime(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
