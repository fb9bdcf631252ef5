package core

import (
	"context"
	"errors"
	"testing"

	"stocksense/internal/chat"
	"stocksense/internal/config"
)

func testCore(t *testing.T) *Core {
	t.Helper()
	cfg := &config.AppConfig{
		Chat: config.ChatConfig{Enabled: true, LowConfidenceThreshold: 0.55},
	}
	c, err := New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAnswerIntentDegradesOnUnresolvableParams(t *testing.T) {
	c := testCore(t)

	// "yearly breakdown" resolves, but no target year can be extracted; the
	// pipeline must still answer instead of surfacing a validation error.
	resp, err := c.AnswerIntent(context.Background(), 1, "yearly breakdown", "", nil)
	if err != nil {
		t.Fatalf("AnswerIntent: %v", err)
	}
	if resp.Route != string(chat.RouteNoAnswer) {
		t.Errorf("route = %q, want %q", resp.Route, chat.RouteNoAnswer)
	}
	if resp.Answer == "" {
		t.Error("degraded response must carry a non-empty answer")
	}
}

func TestAnswerIntentUnknownExplicitIntent(t *testing.T) {
	c := testCore(t)

	_, err := c.AnswerIntent(context.Background(), 1, "", "bogus_intent", nil)
	var pe *chat.ParamError
	if !errors.As(err, &pe) || pe.Field != "intent" {
		t.Errorf("error = %v, want a parameter error on intent", err)
	}
}

func TestAnswerIntentExplicitBadParamsStayErrors(t *testing.T) {
	c := testCore(t)

	// Caller-supplied params out of bounds are the caller's problem, not a
	// degradation case.
	_, err := c.AnswerIntent(context.Background(), 1, "", chat.IntentStockoutRisk,
		map[string]interface{}{"horizon_days": 3})
	var pe *chat.ParamError
	if !errors.As(err, &pe) || pe.Field != "horizon_days" {
		t.Errorf("error = %v, want a parameter error on horizon_days", err)
	}
}
