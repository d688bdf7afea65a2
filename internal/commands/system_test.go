package commands

import (
	"testing"
	"time"
)

func TestHostDateTime(t *testing.T) {
	// 2000-01-01 was a Saturday.
	tests := []struct {
		day         int
		wantWeekday uint32
	}{
		{day: 1, wantWeekday: 6}, // Saturday
		{day: 2, wantWeekday: 7}, // Sunday
		{day: 3, wantWeekday: 1}, // Monday
		{day: 5, wantWeekday: 3}, // Wednesday
	}
	for _, tt := range tests {
		dt := hostDateTime(time.Date(2000, 1, tt.day, 13, 37, 42, 0, time.UTC))
		if dt.Weekday != tt.wantWeekday {
			t.Errorf("2000-01-%02d: Weekday = %d, want %d", tt.day, dt.Weekday, tt.wantWeekday)
		}
	}

	dt := hostDateTime(time.Date(2026, 8, 26, 9, 5, 1, 0, time.UTC))
	if dt.Year != 2026 || dt.Month != 8 || dt.Day != 26 || dt.Hour != 9 || dt.Minute != 5 || dt.Second != 1 {
		t.Errorf("got %+v", dt)
	}
}
