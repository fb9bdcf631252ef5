package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"stocksense/internal/llm"
)

// Chatter is the slice of the LLM client the resolver needs.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

// LLMResolver maps prompts the rule table could not score confidently onto
// the closed intent set via a JSON-constrained LLM call.
type LLMResolver struct {
	client Chatter
}

func NewLLMResolver(client Chatter) *LLMResolver {
	return &LLMResolver{client: client}
}

const resolverSystemPrompt = `You classify inventory and sales questions into exactly one intent.
Respond with VALID JSON only, no prose, with keys:
{"intent": "...", "params": {...}, "confidence": 0.0, "reasons": ["..."]}
intent MUST be one of: %s.
If no intent fits, use an empty string for intent and confidence 0.
params may include: n, period (1d|7d|30d), horizon_days, velocity_strategy, query, target_year.`

// Resolve asks the LLM to classify the prompt. Any intent outside the
// registered set, sentinel output or unparseable JSON collapses to
// unresolved.
func (r *LLMResolver) Resolve(ctx context.Context, prompt string) Resolution {
	system := fmt.Sprintf(resolverSystemPrompt, strings.Join(AllIntents, ", "))

	raw, err := r.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{JSONObject: true, Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		log.Debug().Err(err).Msg("resolver: llm call failed")
		return Resolution{Source: "llm", Confidence: 0}
	}

	var parsed struct {
		Intent     string                 `json:"intent"`
		Params     map[string]interface{} `json:"params"`
		Confidence float64                `json:"confidence"`
		Reasons    []string               `json:"reasons"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		log.Debug().Str("raw", raw).Msg("resolver: llm output not valid JSON")
		return Resolution{Source: "llm", Confidence: 0}
	}

	if parsed.Intent == "" || !IsValidIntent(parsed.Intent) {
		return Resolution{Source: "llm", Confidence: 0}
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	return Resolution{
		Intent:     parsed.Intent,
		Params:     parsed.Params,
		Confidence: parsed.Confidence,
		Source:     "llm",
		Reasons:    parsed.Reasons,
	}
}

// Arbitrate picks between the rule and LLM resolutions. Rules at or above
// the threshold always win; otherwise a valid LLM intent wins when it is
// more confident or when rules found nothing.
func Arbitrate(rules, llmRes Resolution, threshold float64) Resolution {
	if rules.Resolved() && rules.Confidence >= threshold {
		return rules
	}
	if llmRes.Resolved() && (llmRes.Confidence > rules.Confidence || !rules.Resolved()) {
		return llmRes
	}
	return rules
}

// extractJSONObject trims any stray prose around the first JSON object in
// the output. Local models occasionally wrap JSON in markdown fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
