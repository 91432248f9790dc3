package shared

import (
	"time"
)

// RFC2822 is the layout used for dates stored as preference text.
//
// Milliseconds are written so that two commits within the same second remain ordered;
// parsing accepts input with or without the fractional part.
const (
	RFC2822       = "Mon, 02 Jan 2006 15:04:05 -0700"
	rfc2822Millis = "Mon, 02 Jan 2006 15:04:05.000 -0700"
)

var rfc2822Fallbacks = []string{
	"Mon, 02 Jan 2006 15:04 -0700",
	"Mon, 02 Jan 2006 15:04:05",
}

// DefaultDate is the "never validated" sentinel (the Unix epoch).
var DefaultDate = time.Unix(0, 0).UTC()

// FormatRFC2822 renders t for storage.
func FormatRFC2822(t time.Time) string {
	return t.Format(rfc2822Millis)
}

// ParseRFC2822 parses a stored date, trying the alternative layouts in order.
// Unparseable input yields [DefaultDate] and false.
func ParseRFC2822(s string) (time.Time, bool) {
	if t, err := time.Parse(RFC2822, s); err == nil {
		return t, true
	}
	for _, layout := range rfc2822Fallbacks {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return DefaultDate, false
}

// NextModificationDate returns a timestamp strictly after prev, normally now truncated to milliseconds.
func NextModificationDate(prev, now time.Time) time.Time {
	next := now.Truncate(time.Millisecond)
	if !next.After(prev) {
		next = prev.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return next
}
