package chat

import (
	"testing"
	"time"
)

var frozen = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func TestNormalizeTime(t *testing.T) {
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		prompt    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"sales today", midnight, frozen},
		{"what sold yesterday", midnight.AddDate(0, 0, -1), midnight},
		{"revenue last week", frozen.AddDate(0, 0, -7), frozen},
		{"units past 30 days", frozen.AddDate(0, 0, -30), frozen},
		{"margin this month", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), frozen},
		{"forecast for q2", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"show me numbers", frozen.AddDate(0, 0, -7), frozen},
	}

	for _, tc := range cases {
		start, end := NormalizeTime(tc.prompt, frozen, time.UTC)
		if !start.Equal(tc.wantStart) || !end.Equal(tc.wantEnd) {
			t.Errorf("NormalizeTime(%q) = [%v, %v], want [%v, %v]",
				tc.prompt, start, end, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestNormalizeTimeDefaultsNilLocation(t *testing.T) {
	start, end := NormalizeTime("anything", frozen, nil)
	if !start.Equal(frozen.AddDate(0, 0, -7)) || !end.Equal(frozen) {
		t.Errorf("nil location default = [%v, %v]", start, end)
	}
}

func TestParseNumbersUnits(t *testing.T) {
	got := ParseNumbersUnits("in 30 days reorder 50 units")
	if got["days"] != 30 || got["qty"] != 50 {
		t.Errorf("ParseNumbersUnits = %v, want days:30 qty:50", got)
	}

	got = ParseNumbersUnits("margin dropped 15% this week")
	if got["percent"] != 0.15 {
		t.Errorf("percent = %v, want 0.15", got["percent"])
	}

	got = ParseNumbersUnits("order 12 pcs")
	if got["qty"] != 12 {
		t.Errorf("pcs = %v, want 12", got["qty"])
	}

	if got := ParseNumbersUnits("no numbers here"); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestResolveSKUs(t *testing.T) {
	got := ResolveSKUs("compare iPhone against MacBook, then iPhone again", nil)
	want := []string{"APPL-IPH-001", "APPL-MBP-001"}
	if len(got) != len(want) {
		t.Fatalf("ResolveSKUs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ResolveSKUs[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if got := ResolveSKUs("nothing matches", nil); got != nil {
		t.Errorf("expected nil for no aliases, got %v", got)
	}
}
