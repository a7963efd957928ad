package service

import (
	"testing"
	"time"

	"coinsentry/internal/config"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 10, hour, 5, 0, 0, time.UTC)
}

func TestShouldSendOncePerHourSlot(t *testing.T) {
	svc := NewSummaryService([]int{9, 18}, config.QuietHoursConfig{})
	clock := at(9)
	svc.nowFunc = func() time.Time { return clock }

	if !svc.ShouldSend() {
		t.Fatal("summary should be due at a configured hour")
	}
	svc.MarkSent()
	if svc.ShouldSend() {
		t.Fatal("summary should not repeat within the same hour slot")
	}

	clock = at(18)
	if !svc.ShouldSend() {
		t.Fatal("next configured hour should be due")
	}

	// The same hour on the next day is due again.
	clock = at(9).Add(24 * time.Hour)
	if !svc.ShouldSend() {
		t.Fatal("next day's slot should be due")
	}
}

func TestShouldSendOffHours(t *testing.T) {
	svc := NewSummaryService([]int{9}, config.QuietHoursConfig{})
	clock := at(10)
	svc.nowFunc = func() time.Time { return clock }

	if svc.ShouldSend() {
		t.Fatal("no summary outside configured hours")
	}
}

func TestShouldSendRespectsQuietHours(t *testing.T) {
	quiet := config.QuietHoursConfig{Enabled: true, StartHour: 23, EndHour: 10}
	svc := NewSummaryService([]int{9}, quiet)
	clock := at(9)
	svc.nowFunc = func() time.Time { return clock }

	if svc.ShouldSend() {
		t.Fatal("quiet hours should suppress the summary")
	}
}

func TestInQuietHoursWrapsMidnight(t *testing.T) {
	quiet := config.QuietHoursConfig{Enabled: true, StartHour: 23, EndHour: 7}

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{2, true},
		{6, true},
		{7, false},
		{12, false},
		{22, false},
	}
	for _, tc := range cases {
		if got := InQuietHours(quiet, at(tc.hour)); got != tc.want {
			t.Fatalf("hour %d: expected %v, got %v", tc.hour, tc.want, got)
		}
	}

	daytime := config.QuietHoursConfig{Enabled: true, StartHour: 13, EndHour: 15}
	if !InQuietHours(daytime, at(13)) || InQuietHours(daytime, at(15)) {
		t.Fatal("non-wrapping window should be [start, end)")
	}

	disabled := config.QuietHoursConfig{StartHour: 0, EndHour: 23}
	if InQuietHours(disabled, at(12)) {
		t.Fatal("disabled quiet hours never match")
	}
}

func TestNextSummary(t *testing.T) {
	svc := NewSummaryService([]int{9, 18}, config.QuietHoursConfig{})
	clock := at(10)
	svc.nowFunc = func() time.Time { return clock }

	next := svc.NextSummary()
	if next.Hour() != 18 || next.Day() != clock.Day() {
		t.Fatalf("expected today 18:00, got %v", next)
	}

	clock = at(20)
	next = svc.NextSummary()
	if next.Hour() != 9 || next.Day() != clock.Day()+1 {
		t.Fatalf("expected tomorrow 09:00, got %v", next)
	}

	empty := NewSummaryService(nil, config.QuietHoursConfig{})
	if !empty.NextSummary().IsZero() {
		t.Fatal("no hours configured means no next summary")
	}
}
