package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestCandidateEndpoints(t *testing.T) {
	cases := []struct {
		base string
		path string
		want []string
	}{
		{
			base: "http://localhost:1234",
			path: "/chat/completions",
			want: []string{
				"http://localhost:1234/v1/chat/completions",
				"http://localhost:1234/chat/completions",
			},
		},
		{
			base: "http://localhost:1234/",
			path: "chat/completions",
			want: []string{
				"http://localhost:1234/v1/chat/completions",
				"http://localhost:1234/chat/completions",
			},
		},
		{
			base: "http://localhost:1234/v1",
			path: "/embeddings",
			want: []string{
				"http://localhost:1234/v1/embeddings",
				"http://localhost:1234/embeddings",
			},
		},
	}

	for _, tc := range cases {
		got := CandidateEndpoints(tc.base, tc.path)
		if len(got) != len(tc.want) {
			t.Errorf("CandidateEndpoints(%q, %q) = %v, want %v", tc.base, tc.path, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("CandidateEndpoints(%q, %q)[%d] = %q, want %q", tc.base, tc.path, i, got[i], tc.want[i])
			}
		}
	}
}

func TestExtractAnswerPreference(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message content", `{"choices":[{"message":{"content":"hello"}}]}`, "hello"},
		{"reasoning fallback", `{"choices":[{"message":{"reasoning_content":"thought"}}]}`, "thought"},
		{"text fallback", `{"choices":[{"text":"completed"}]}`, "completed"},
		{"raw body", `not json at all`, "not json at all"},
	}

	for _, tc := range cases {
		if got := extractAnswer([]byte(tc.body)); got != tc.want {
			t.Errorf("%s: extractAnswer = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBrokenOutput(t *testing.T) {
	if !brokenOutput("<|channel|>analysis") {
		t.Error("template sentinel should be treated as broken")
	}
	if !brokenOutput("  <|start|>") {
		t.Error("leading whitespace before sentinel should still be broken")
	}
	if brokenOutput("normal answer") {
		t.Error("plain text is not broken")
	}
}

func newTestClient(baseURL string) *Client {
	return &Client{
		baseURL:   baseURL,
		chatModel: "test-model",
		hc:        &http.Client{Timeout: 2 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
}

func TestChatFallsBackAcrossEndpoints(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/v1/chat/completions":
			// Broken template output forces the fallback chain.
			w.Write([]byte(`{"choices":[{"message":{"content":"<|channel|>oops"}}]}`))
		case "/chat/completions":
			w.Write([]byte(`{"error":"Unexpected endpoint"}`))
		case "/v1/completions":
			w.Write([]byte(`{"choices":[{"text":"recovered answer"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "recovered answer" {
		t.Errorf("Chat = %q, want %q", got, "recovered answer")
	}
	if len(calls) < 3 {
		t.Errorf("expected at least 3 endpoint attempts, got %v", calls)
	}
}

func TestChatAllEndpointsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{}); err == nil {
		t.Fatal("expected error when every endpoint fails")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.embedModel = "embed-model"
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected embedding shape: %v", vecs)
	}
	if vecs[1][0] != 0.3 {
		t.Errorf("vecs[1][0] = %v, want 0.3", vecs[1][0])
	}
}
