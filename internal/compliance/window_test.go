package compliance

import (
	"testing"
	"time"
)

const tz = "America/New_York"

func localTime(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2026, time.March, 10, hour, minute, 0, 0, loc)
}

func TestIsCompliantTimeBoundaries(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{7, 59, false},
		{8, 0, true},
		{20, 59, true},
		{21, 0, false},
		{23, 30, false},
		{0, 0, false},
		{12, 0, true},
	}

	for _, tc := range cases {
		got, err := IsCompliantTime(localTime(t, tc.hour, tc.minute), tz)
		if err != nil {
			t.Fatalf("%02d:%02d: %v", tc.hour, tc.minute, err)
		}
		if got != tc.want {
			t.Errorf("IsCompliantTime at %02d:%02d = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestIsCompliantTimeInvalidZone(t *testing.T) {
	if _, err := IsCompliantTime(time.Now(), "Not/AZone"); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestNextCompliantTimeLateEvening(t *testing.T) {
	now := localTime(t, 22, 0)
	got, err := NextCompliantTime(now, tz)
	if err != nil {
		t.Fatalf("next compliant: %v", err)
	}

	loc, _ := time.LoadLocation(tz)
	want := time.Date(2026, time.March, 11, 8, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("at 22:00 next compliant = %v, want %v", got, want)
	}
}

func TestNextCompliantTimeEarlyMorning(t *testing.T) {
	now := localTime(t, 3, 0)
	got, err := NextCompliantTime(now, tz)
	if err != nil {
		t.Fatalf("next compliant: %v", err)
	}

	loc, _ := time.LoadLocation(tz)
	want := time.Date(2026, time.March, 10, 8, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("at 03:00 next compliant = %v, want %v", got, want)
	}
}

func TestNextCompliantTimeCrossZone(t *testing.T) {
	// 03:00 New York is 09:00 in Berlin; the Berlin window is already open so
	// the next opening is tomorrow.
	now := localTime(t, 3, 0)
	got, err := NextCompliantTime(now, "Europe/Berlin")
	if err != nil {
		t.Fatalf("next compliant: %v", err)
	}
	if !got.After(now) {
		t.Fatalf("next compliant %v not after now %v", got, now)
	}
	berlin, _ := time.LoadLocation("Europe/Berlin")
	if got.In(berlin).Hour() != 8 {
		t.Fatalf("next compliant local hour = %d, want 8", got.In(berlin).Hour())
	}
}

func TestLocalAtHour(t *testing.T) {
	now := localTime(t, 15, 30)
	got, err := LocalAtHour(now, tz, 3, 10)
	if err != nil {
		t.Fatalf("local at hour: %v", err)
	}

	loc, _ := time.LoadLocation(tz)
	want := time.Date(2026, time.March, 13, 10, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("LocalAtHour = %v, want %v", got, want)
	}
}
