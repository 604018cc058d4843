package siwe

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	valid := []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:00.123Z",
		"2024-01-01T02:00:00+02:00",
		"2024-01-01t00:00:00z",
		"2024-01-01t02:00:00+02:00",
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range valid {
		got, ok := ParseTimestamp(s)
		if !ok {
			t.Fatalf("ParseTimestamp(%q) rejected", s)
		}
		if got.Truncate(time.Second).Compare(want) != 0 {
			t.Fatalf("ParseTimestamp(%q) = %v", s, got)
		}
	}
	invalid := []string{
		"2024-01-01",
		"2024-01-01 00:00:00Z",
		"2024-01-01T00:00:00",
		"2024-13-01T00:00:00Z",
		"yesterday",
	}
	for _, s := range invalid {
		if _, ok := ParseTimestamp(s); ok {
			t.Fatalf("ParseTimestamp(%q) accepted", s)
		}
	}
}

func TestCoerceTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01 00:00:00",
		"2024-01-01T00:00:00",
		"2024-01-01",
		"1704067200",
		"1704067200000",
	} {
		got, ok := CoerceTimestamp(s)
		if !ok || !got.Equal(want) {
			t.Fatalf("CoerceTimestamp(%q) = %v, %v", s, got, ok)
		}
		if FormatTimestamp(got) != "2024-01-01T00:00:00Z" {
			t.Fatalf("FormatTimestamp = %s", FormatTimestamp(got))
		}
	}
	if _, ok := CoerceTimestamp("not a date"); ok {
		t.Fatalf("garbage coerced")
	}
}
