package service

import (
	"testing"
	"time"
)

func TestNormalizeDayKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare day key", input: "2024-01-15", expected: "2024-01-15"},
		{name: "store timestamp", input: "2024-01-15 00:00:00.000Z", expected: "2024-01-15"},
		{name: "rfc3339", input: "2024-01-15T08:30:00Z", expected: "2024-01-15"},
		{name: "surrounding spaces", input: "  2024-01-15  ", expected: "2024-01-15"},
		{name: "slash separator", input: "2024/01/15", expected: "2024-01-15"},
		{name: "compact digits", input: "20240115", expected: "2024-01-15"},
		{name: "unpadded", input: "2024-1-5", expected: "2024-01-05"},
		{name: "unparseable passthrough", input: "not-a-date", expected: "not-a-date"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDayKey(tt.input)
			if got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizeDayKeyIsIdempotent(t *testing.T) {
	inputs := []string{
		"2024-01-15",
		"2024-01-15 18:45:09.120Z",
		"2024/01/15",
		"garbage",
	}

	for _, input := range inputs {
		once := NormalizeDayKey(input)
		twice := NormalizeDayKey(once)
		if once != twice {
			t.Fatalf("normalizing %q twice changed the result: %q -> %q", input, once, twice)
		}
	}
}

// 带时间分量的值只截取日期段，不能走时区换算把日界挪走
func TestNormalizeDayKeyKeepsStoredDay(t *testing.T) {
	got := NormalizeDayKey("2024-01-15 23:59:59.999Z")
	if got != "2024-01-15" {
		t.Fatalf("expected stored day to survive, got %q", got)
	}
}

func TestDayBounds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		start string
		end   string
	}{
		{name: "plain day", input: "2024-01-15", start: "2024-01-15", end: "2024-01-16"},
		{name: "timestamp input", input: "2024-01-15 08:00:00.000Z", start: "2024-01-15", end: "2024-01-16"},
		{name: "month boundary", input: "2024-01-31", start: "2024-01-31", end: "2024-02-01"},
		{name: "leap february", input: "2024-02-28", start: "2024-02-28", end: "2024-02-29"},
		{name: "leap day", input: "2024-02-29", start: "2024-02-29", end: "2024-03-01"},
		{name: "year boundary", input: "2023-12-31", start: "2023-12-31", end: "2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := DayBounds(tt.input)
			if start != tt.start || end != tt.end {
				t.Fatalf("expected [%s, %s), got [%s, %s)", tt.start, tt.end, start, end)
			}
		})
	}
}

// 区间边界用裸日键：字符串序下同时覆盖裸日键和带时间分量的落库值
func TestDayBoundsCoverBareAndNoisyValues(t *testing.T) {
	start, end := DayBounds("2024-01-15")

	covered := []string{
		"2024-01-15",
		"2024-01-15 00:00:00.000Z",
		"2024-01-15 23:59:59.999Z",
	}
	for _, value := range covered {
		if !(value >= start && value < end) {
			t.Fatalf("expected %q inside [%s, %s)", value, start, end)
		}
	}

	excluded := []string{
		"2024-01-14 23:59:59.999Z",
		"2024-01-16",
		"2024-01-16 00:00:00.000Z",
	}
	for _, value := range excluded {
		if value >= start && value < end {
			t.Fatalf("expected %q outside [%s, %s)", value, start, end)
		}
	}
}

func TestShiftDay(t *testing.T) {
	if got := ShiftDay("2024-01-15", 1); got != "2024-01-16" {
		t.Fatalf("expected 2024-01-16, got %q", got)
	}
	if got := ShiftDay("2024-01-15", -29); got != "2023-12-17" {
		t.Fatalf("expected 2023-12-17, got %q", got)
	}
	if got := ShiftDay("garbage", 3); got != "garbage" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestDaysBetween(t *testing.T) {
	if got := daysBetween("2024-01-15", "2024-01-15"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := daysBetween("2024-01-01", "2024-01-31"); got != 31 {
		t.Fatalf("expected 31, got %d", got)
	}
	if got := daysBetween("2024-01-31", "2024-01-01"); got != 0 {
		t.Fatalf("expected 0 for reversed range, got %d", got)
	}
}

func TestTodayIsDayKey(t *testing.T) {
	if _, err := time.Parse("2006-01-02", Today()); err != nil {
		t.Fatalf("expected Today to produce a day key: %v", err)
	}
}
