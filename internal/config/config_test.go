package config

import (
	"testing"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"email,webhook", []string{"email", "webhook"}},
		{" email , webhook ", []string{"email", "webhook"}},
		{"", nil},
		{",,", nil},
		{"*", []string{"*"}},
	}

	for _, tc := range cases {
		got := splitCSV(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("splitCSV(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("splitCSV(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "x")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stocksense_test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_TZ", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AccessMinutes != 30 {
		t.Errorf("AccessMinutes = %d, want 30", cfg.AccessMinutes)
	}
	if cfg.Chat.LowConfidenceThreshold != 0.55 {
		t.Errorf("LowConfidenceThreshold = %v, want 0.55", cfg.Chat.LowConfidenceThreshold)
	}
	if !cfg.Chat.Enabled {
		t.Error("Chat.Enabled should default to true")
	}
	if cfg.Chat.HybridEnabled {
		t.Error("Chat.HybridEnabled should default to false")
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("RAG.TopK = %d, want 5", cfg.RAG.TopK)
	}
	if cfg.LLM.Timeout.Seconds() != 60 {
		t.Errorf("LLM.Timeout = %v, want 60s", cfg.LLM.Timeout)
	}
}
