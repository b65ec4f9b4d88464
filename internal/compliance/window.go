// Package compliance gates outbound communication to the legally permitted
// local-time window. Collection emails may only go out between 08:00 and
// 21:00 in the recipient's local time.
package compliance

import "time"

const (
	// WindowOpenHour is the first permitted local hour (inclusive).
	WindowOpenHour = 8
	// WindowCloseHour is the first forbidden local hour after the window.
	WindowCloseHour = 21
)

// IsCompliantTime reports whether the given instant falls inside the
// permitted send window in the given IANA timezone.
func IsCompliantTime(at time.Time, timezone string) (bool, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return false, err
	}
	hour := at.In(loc).Hour()
	return hour >= WindowOpenHour && hour < WindowCloseHour, nil
}

// NextCompliantTime returns the next window opening after now: today 08:00
// local when the local hour is still before the window, otherwise tomorrow
// 08:00 local.
func NextCompliantTime(now time.Time, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), WindowOpenHour, 0, 0, 0, loc)
	if local.Hour() < WindowOpenHour {
		return open, nil
	}
	return open.AddDate(0, 0, 1), nil
}

// LocalAtHour returns the instant at the given local hour, days from now, in
// the given timezone. Used by timing decisions that defer to "10:00 local in
// N days".
func LocalAtHour(now time.Time, timezone string, days, hour int) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc).AddDate(0, 0, days)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc), nil
}
