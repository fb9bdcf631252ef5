package chat

import (
	"errors"
	"testing"
	"time"
)

func newComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer()
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	return c
}

func TestComposeBIValidates(t *testing.T) {
	c := newComposer(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	payload := BIPayload{
		Columns:    []string{"sku", "gross_margin"},
		Rows:       []map[string]interface{}{{"sku": "A", "gross_margin": 12.5}},
		SQL:        "SELECT ...",
		Definition: "Top SKUs by margin, 7 days",
		Tables:     []string{"sales_daily", "products"},
	}

	resp, err := c.ComposeBI(IntentTopSKUsByMargin, "Your top seller is A.", payload, "q-1", 0.8, now)
	if err != nil {
		t.Fatalf("ComposeBI: %v", err)
	}
	if resp.Route != "BI" || resp.Intent != IntentTopSKUsByMargin {
		t.Errorf("route/intent = %s/%s", resp.Route, resp.Intent)
	}
	if resp.Provenance.Data == nil || len(resp.Provenance.Data.Tables) != 2 {
		t.Errorf("provenance = %+v, want data tables", resp.Provenance)
	}
	if resp.Confidence.Level != ConfidenceHigh {
		t.Errorf("confidence level = %s, want high", resp.Confidence.Level)
	}
	if !resp.Freshness.GeneratedAt.Equal(now) {
		t.Errorf("generated_at = %v, want %v", resp.Freshness.GeneratedAt, now)
	}
}

func TestComposeRAGCapsCitations(t *testing.T) {
	c := newComposer(t)

	snippets := make([]Snippet, 14)
	for i := range snippets {
		snippets[i] = Snippet{Title: "Doc", URL: "https://docs.example/a", Text: "passage", Score: 0.5}
	}

	resp, err := c.ComposeRAG("Per the policy...", snippets, 0.6, time.Now())
	if err != nil {
		t.Fatalf("ComposeRAG: %v", err)
	}
	if len(resp.Provenance.Docs) != 10 {
		t.Errorf("citations = %d, want capped at 10", len(resp.Provenance.Docs))
	}
	if resp.Confidence.Level != ConfidenceMedium {
		t.Errorf("confidence level = %s, want medium", resp.Confidence.Level)
	}
}

func TestComposeNoAnswerNeverEmpty(t *testing.T) {
	c := newComposer(t)

	resp, err := c.ComposeNoAnswer("", nil, time.Now())
	if err != nil {
		t.Fatalf("ComposeNoAnswer: %v", err)
	}
	if resp.Answer == "" {
		t.Error("answer must never be empty")
	}
	if len(resp.FollowUps) == 0 {
		t.Error("follow-ups must never be empty")
	}
	if resp.Confidence.Level != ConfidenceLow {
		t.Errorf("confidence level = %s, want low", resp.Confidence.Level)
	}
}

func TestValidateRejectsEmptyAnswer(t *testing.T) {
	c := newComposer(t)

	err := c.Validate(&Response{
		Route:      "OPEN",
		Answer:     "",
		Confidence: ConfidenceFrom(0.5),
		FollowUps:  []string{"try again"},
	})
	if err == nil {
		t.Fatal("empty answer must fail schema validation")
	}
	var sve *SchemaValidationError
	if !errors.As(err, &sve) {
		t.Errorf("error type = %T, want *SchemaValidationError", err)
	}
}

func TestValidateRejectsUnknownRoute(t *testing.T) {
	c := newComposer(t)

	err := c.Validate(&Response{
		Route:      "TELEPATHY",
		Answer:     "hello",
		Confidence: ConfidenceFrom(0.5),
		FollowUps:  []string{"try again"},
	})
	if err == nil {
		t.Fatal("unknown route must fail schema validation")
	}
}

func TestConfidenceFromBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.9, ConfidenceHigh},
		{0.75, ConfidenceHigh},
		{0.6, ConfidenceMedium},
		{0.5, ConfidenceMedium},
		{0.49, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tc := range cases {
		if got := ConfidenceFrom(tc.score); got.Level != tc.want {
			t.Errorf("ConfidenceFrom(%v).Level = %s, want %s", tc.score, got.Level, tc.want)
		}
	}
}
