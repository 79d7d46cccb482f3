package engine

import "time"

// ExpiresAt returns the instant an applied tag lapses. The boolean is false
// for tags that never expire.
func ExpiresAt(at AppliedTag) (time.Time, bool) {
	if !at.Tag.Expires() {
		return time.Time{}, false
	}
	return at.AppliedAt.Add(at.Tag.Lifetime()), true
}

// IsExpired reports whether the applied tag has lapsed at now. A tag is
// already expired at the exact expiry instant.
func IsExpired(at AppliedTag, now time.Time) bool {
	expiry, ok := ExpiresAt(at)
	if !ok {
		return false
	}
	return !now.Before(expiry)
}

// Remaining returns how long the applied tag stays active after now,
// clamped at zero. The boolean is false for tags that never expire.
func Remaining(at AppliedTag, now time.Time) (time.Duration, bool) {
	expiry, ok := ExpiresAt(at)
	if !ok {
		return 0, false
	}
	if d := expiry.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
