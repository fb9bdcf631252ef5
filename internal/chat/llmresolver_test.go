package chat

import (
	"context"
	"errors"
	"testing"

	"stocksense/internal/llm"
)

// fakeChatter returns a canned reply or error.
type fakeChatter struct {
	reply string
	err   error
	calls int
}

func (f *fakeChatter) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestLLMResolverParsesFencedJSON(t *testing.T) {
	r := NewLLMResolver(&fakeChatter{reply: "```json\n{\"intent\": \"stockout_risk\", \"params\": {\"horizon_days\": 14}, \"confidence\": 0.9, \"reasons\": [\"asks about running out\"]}\n```"})

	res := r.Resolve(context.Background(), "are we going to run out of anything?")
	if res.Intent != IntentStockoutRisk {
		t.Errorf("intent = %q, want %q", res.Intent, IntentStockoutRisk)
	}
	if res.Confidence != 0.9 || res.Source != "llm" {
		t.Errorf("resolution = %+v", res)
	}
}

func TestLLMResolverRejectsUnknownIntent(t *testing.T) {
	r := NewLLMResolver(&fakeChatter{reply: `{"intent": "world_domination", "confidence": 0.99}`})
	if res := r.Resolve(context.Background(), "anything"); res.Resolved() {
		t.Errorf("out-of-set intent must collapse to unresolved, got %+v", res)
	}
}

func TestLLMResolverCollapsesOnGarbage(t *testing.T) {
	cases := []fakeChatter{
		{reply: "I think this is about stockouts"},
		{reply: ""},
		{err: errors.New("all endpoints down")},
	}
	for i := range cases {
		r := NewLLMResolver(&cases[i])
		if res := r.Resolve(context.Background(), "anything"); res.Resolved() {
			t.Errorf("case %d: expected unresolved, got %+v", i, res)
		}
	}
}

func TestLLMResolverClampsConfidence(t *testing.T) {
	r := NewLLMResolver(&fakeChatter{reply: `{"intent": "slow_movers", "confidence": 3.5}`})
	res := r.Resolve(context.Background(), "anything")
	if res.Confidence != 1.0 {
		t.Errorf("confidence = %v, want clamped to 1.0", res.Confidence)
	}
}

func TestArbitrate(t *testing.T) {
	const threshold = 0.55

	cases := []struct {
		name       string
		rules, llm Resolution
		want       string
	}{
		{
			"confident rules win over llm",
			Resolution{Intent: IntentTopSKUsByMargin, Confidence: 0.8, Source: "rules"},
			Resolution{Intent: IntentSlowMovers, Confidence: 0.95, Source: "llm"},
			IntentTopSKUsByMargin,
		},
		{
			"weak rules lose to a more confident llm",
			Resolution{Intent: IntentTopSKUsByMargin, Confidence: 0.4, Source: "rules"},
			Resolution{Intent: IntentSlowMovers, Confidence: 0.7, Source: "llm"},
			IntentSlowMovers,
		},
		{
			"weak rules beat a weaker llm",
			Resolution{Intent: IntentTopSKUsByMargin, Confidence: 0.4, Source: "rules"},
			Resolution{Intent: IntentSlowMovers, Confidence: 0.3, Source: "llm"},
			IntentTopSKUsByMargin,
		},
		{
			"llm fills in when rules found nothing",
			Resolution{Source: "rules"},
			Resolution{Intent: IntentWeekInReview, Confidence: 0.5, Source: "llm"},
			IntentWeekInReview,
		},
		{
			"nothing resolves",
			Resolution{Source: "rules"},
			Resolution{Source: "llm"},
			"",
		},
	}

	for _, tc := range cases {
		if got := Arbitrate(tc.rules, tc.llm, threshold); got.Intent != tc.want {
			t.Errorf("%s: Arbitrate = %q, want %q", tc.name, got.Intent, tc.want)
		}
	}
}
