package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"stocksense/internal/config"
)

// Message is one chat turn in OpenAI-compatible shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single chat call.
type ChatOptions struct {
	JSONObject  bool
	Temperature float64
	MaxTokens   int
}

// Client talks to an OpenAI-compatible endpoint (LM Studio and friends),
// trying versioned and unversioned paths in priority order until one
// answers sensibly. A single instance is shared process-wide.
type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	authToken  string
	hc         *http.Client
	limiter    *rate.Limiter
}

// New builds the process-wide client. Outbound calls are lightly rate
// limited so a burst of chat requests cannot saturate a local model server.
func New(cfg config.LLMConfig, authToken string) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		authToken:  authToken,
		hc:         &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(8), 16),
	}
}

// CandidateEndpoints builds the prioritized URL list for an API path,
// covering both versioned (/v1/...) and unversioned forms, deduplicated
// preserving order.
func CandidateEndpoints(base, path string) []string {
	base = strings.TrimRight(base, "/")
	root := strings.TrimSuffix(base, "/v1")
	path = "/" + strings.TrimLeft(path, "/")

	candidates := []string{
		root + "/v1" + path,
		root + path,
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, u := range candidates {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// brokenOutput reports template sentinel output such as "<|channel|>",
// which some local models emit when the prompt format does not match.
func brokenOutput(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<|")
}

// unexpectedEndpoint reports the LM Studio body returned when a path exists
// but is not the API the caller wanted.
func unexpectedEndpoint(body []byte) bool {
	return bytes.Contains(body, []byte("Unexpected endpoint"))
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

// extractAnswer pulls the answer text out of a chat or completion body,
// preferring message.content, then reasoning_content, then text, then the
// raw body.
func extractAnswer(body []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		c := parsed.Choices[0]
		if c.Message.Content != "" {
			return c.Message.Content
		}
		if c.Message.ReasoningContent != "" {
			return c.Message.ReasoningContent
		}
		if c.Text != "" {
			return c.Text
		}
	}
	return string(body)
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm endpoint %s returned %d: %s", url, resp.StatusCode, truncate(string(out), 200))
	}
	if unexpectedEndpoint(out) {
		return nil, fmt.Errorf("llm endpoint %s: unexpected endpoint sentinel", url)
	}
	return out, nil
}

// Chat runs one chat completion, trying chat endpoints first and falling
// back to completion-style payloads when the chat output is broken.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	chatPayload := map[string]interface{}{
		"model":    c.chatModel,
		"messages": messages,
	}
	if opts.Temperature > 0 {
		chatPayload["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		chatPayload["max_tokens"] = opts.MaxTokens
	}
	if opts.JSONObject {
		chatPayload["response_format"] = map[string]string{"type": "json_object"}
	}

	var lastErr error
	for _, url := range CandidateEndpoints(c.baseURL, "/chat/completions") {
		body, err := c.post(ctx, url, chatPayload)
		if err != nil {
			lastErr = err
			continue
		}
		answer := extractAnswer(body)
		if brokenOutput(answer) {
			lastErr = fmt.Errorf("llm endpoint %s produced template sentinel output", url)
			log.Debug().Str("url", url).Msg("llm: broken chat output, trying completion endpoints")
			continue
		}
		return answer, nil
	}

	// Completion-style fallback: flatten the conversation into one prompt.
	completionPayload := map[string]interface{}{
		"model":  c.chatModel,
		"prompt": flatten(messages),
	}
	if opts.MaxTokens > 0 {
		completionPayload["max_tokens"] = opts.MaxTokens
	}
	for _, url := range CandidateEndpoints(c.baseURL, "/completions") {
		body, err := c.post(ctx, url, completionPayload)
		if err != nil {
			lastErr = err
			continue
		}
		answer := extractAnswer(body)
		if brokenOutput(answer) {
			lastErr = fmt.Errorf("llm endpoint %s produced template sentinel output", url)
			continue
		}
		return answer, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no llm endpoints configured")
	}
	return "", fmt.Errorf("chat completion failed on all endpoints: %w", lastErr)
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one embedding vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	payload := map[string]interface{}{
		"model": c.embedModel,
		"input": texts,
	}

	var lastErr error
	for _, url := range CandidateEndpoints(c.baseURL, "/embeddings") {
		body, err := c.post(ctx, url, payload)
		if err != nil {
			lastErr = err
			continue
		}
		var parsed embedResponse
		if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) != len(texts) {
			lastErr = fmt.Errorf("llm endpoint %s: malformed embedding response", url)
			continue
		}
		out := make([][]float64, len(parsed.Data))
		for i, d := range parsed.Data {
			out[i] = d.Embedding
		}
		return out, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no llm endpoints configured")
	}
	return nil, fmt.Errorf("embedding failed on all endpoints: %w", lastErr)
}

// Health checks that the backend answers a trivial request.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Chat(ctx, []Message{{Role: "user", Content: "ping"}}, ChatOptions{MaxTokens: 4})
	return err
}

func flatten(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(strings.ToUpper(m.Role[:1]) + m.Role[1:])
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
