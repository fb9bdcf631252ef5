package analytics

import (
	"testing"
	"time"
)

func TestProjectQuartersCompletedPassThrough(t *testing.T) {
	now := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	got := ProjectQuarters([]quarterRow{
		{Year: 2025, Quarter: 3, Revenue: 9000, Units: 450, Margin: 2700, Days: 92},
		{Year: 2025, Quarter: 4, Revenue: 12000, Units: 600, Margin: 3600, Days: 92},
	}, now)

	if len(got) != 2 {
		t.Fatalf("got %d projections, want 2", len(got))
	}
	for _, p := range got {
		if p.Projected {
			t.Errorf("%s: completed quarter must not be projected", p.Label)
		}
		if p.Confidence != "medium" {
			t.Errorf("%s: confidence = %s, want medium", p.Label, p.Confidence)
		}
	}
	if got[0].Label != "2025-Q3" || got[0].Revenue != 9000 {
		t.Errorf("pass-through mangled: %+v", got[0])
	}
}

func TestProjectQuartersScalesCurrentQuarter(t *testing.T) {
	// 30 of 90 days observed: everything triples, confidence low.
	now := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

	got := ProjectQuarters([]quarterRow{
		{Year: 2026, Quarter: 1, Revenue: 1000, Units: 100, Margin: 300, Days: 30},
	}, now)

	p := got[0]
	if !p.Projected {
		t.Fatal("partial current quarter must be projected")
	}
	if p.Revenue != 3000 || p.Units != 300 || p.Margin != 900 {
		t.Errorf("scaled totals = %v/%v/%v, want 3000/300/900", p.Revenue, p.Units, p.Margin)
	}
	if p.Confidence != "low" {
		t.Errorf("confidence = %s, want low with under half the quarter observed", p.Confidence)
	}
}

func TestProjectQuartersLateQuarterKeepsMediumConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	got := ProjectQuarters([]quarterRow{
		{Year: 2026, Quarter: 1, Revenue: 6000, Units: 300, Margin: 1800, Days: 60},
	}, now)

	p := got[0]
	if !p.Projected || p.Confidence != "medium" {
		t.Errorf("60 observed days: %+v, want projected at medium confidence", p)
	}
	if p.Revenue != 9000 {
		t.Errorf("revenue = %v, want 9000 (60 -> 90 days)", p.Revenue)
	}
}

func TestQuarterOf(t *testing.T) {
	cases := []struct {
		month time.Month
		want  int
	}{
		{time.January, 1}, {time.March, 1},
		{time.April, 2}, {time.June, 2},
		{time.July, 3}, {time.September, 3},
		{time.October, 4}, {time.December, 4},
	}
	for _, tc := range cases {
		d := time.Date(2026, tc.month, 15, 0, 0, 0, 0, time.UTC)
		if got := quarterOf(d); got != tc.want {
			t.Errorf("quarterOf(%s) = %d, want %d", tc.month, got, tc.want)
		}
	}
}

func TestPeriodDays(t *testing.T) {
	if periodDays("1d") != 1 || periodDays("7d") != 7 || periodDays("30d") != 30 {
		t.Error("period mapping broken")
	}
	if periodDays("") != 7 {
		t.Error("default period must be 7 days")
	}
}

func TestNormalizeRowDecodesBytes(t *testing.T) {
	row := normalizeRow(map[string]interface{}{
		"sku":   []byte("ABC-1"),
		"units": 4,
	})
	if row["sku"] != "ABC-1" || row["units"] != 4 {
		t.Errorf("normalizeRow = %v", row)
	}
}
