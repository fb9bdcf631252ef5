// Package core wires the chat pipeline together: routing, intent
// resolution, analytic execution and response composition. All process-wide
// state lives here and is passed explicitly, never through globals.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stocksense/internal/analytics"
	"stocksense/internal/chat"
	"stocksense/internal/config"
	"stocksense/internal/llm"
	"stocksense/internal/store"
)

// LLM is the slice of the client the core depends on.
type LLM interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Health(ctx context.Context) error
}

// Core is the chat answering aggregate, constructed once at startup.
type Core struct {
	cfg       *config.AppConfig
	st        *store.Store
	llm       LLM
	router    *chat.Router
	resolver  *chat.LLMResolver
	composer  *chat.Composer
	handlers  *analytics.Handlers
	retriever chat.Retriever
	nowFunc   func() time.Time
}

func New(cfg *config.AppConfig, st *store.Store, client LLM, retriever chat.Retriever) (*Core, error) {
	composer, err := chat.NewComposer()
	if err != nil {
		return nil, err
	}
	if retriever == nil {
		retriever = chat.NullRetriever{}
	}
	return &Core{
		cfg:       cfg,
		st:        st,
		llm:       client,
		router:    chat.NewRouter(client, client, cfg.Chat.RouterEmbeddings, cfg.Chat.RouterLLMTiebreaker),
		resolver:  chat.NewLLMResolver(client),
		composer:  composer,
		handlers:  analytics.New(st),
		retriever: retriever,
		nowFunc:   time.Now,
	}, nil
}

// Handlers exposes the analytic executor for the REST endpoints that bypass
// the chat pipeline.
func (c *Core) Handlers() *analytics.Handlers { return c.handlers }

// AnswerIntent serves the intent pipeline: rules first, LLM arbitration when
// the rules are unsure, then the matching handler and a BI response.
func (c *Core) AnswerIntent(ctx context.Context, orgID int64, prompt, explicitIntent string, rawParams map[string]interface{}) (*chat.Response, error) {
	res := c.resolve(ctx, prompt, explicitIntent, rawParams)
	if !res.Resolved() {
		return c.composer.ComposeNoAnswer(
			"I could not match that question to a known report.",
			[]string{"Try asking about stockout risk, top sellers, or reorder suggestions."},
			c.nowFunc())
	}

	params, err := chat.ParseParams(res.Intent, res.Params)
	if err != nil {
		// A caller-supplied intent with bad params is the caller's error; a
		// rules- or LLM-resolved one must still produce an answer.
		if res.Source != "explicit" {
			log.Debug().Err(err).Str("intent", res.Intent).Msg("core: resolved params invalid, degrading")
			return c.composer.ComposeNoAnswer(
				"I recognized the question but could not pin down the details.",
				[]string{"Add specifics, like a product name or a number of days."},
				c.nowFunc())
		}
		return nil, err
	}
	return c.executeBI(ctx, orgID, res, params)
}

// resolve runs rules, then LLM arbitration when enabled and the rules came
// back under the confidence threshold.
func (c *Core) resolve(ctx context.Context, prompt, explicitIntent string, rawParams map[string]interface{}) chat.Resolution {
	if explicitIntent != "" {
		return chat.Resolution{
			Intent:     explicitIntent,
			Params:     rawParams,
			Confidence: 1.0,
			Source:     "explicit",
			Reasons:    []string{"caller-supplied intent"},
		}
	}

	rules := chat.ResolveRules(prompt)
	threshold := c.cfg.Chat.LowConfidenceThreshold
	if rules.Confidence >= threshold || !c.cfg.Chat.LLMFallbackEnabled {
		return merged(rules, rawParams)
	}
	return merged(chat.Arbitrate(rules, c.resolver.Resolve(ctx, prompt), threshold), rawParams)
}

// merged overlays caller-supplied params onto the resolver's extraction.
func merged(res chat.Resolution, rawParams map[string]interface{}) chat.Resolution {
	if len(rawParams) == 0 {
		return res
	}
	if res.Params == nil {
		res.Params = make(map[string]interface{}, len(rawParams))
	}
	for k, v := range rawParams {
		res.Params[k] = v
	}
	return res
}

func (c *Core) executeBI(ctx context.Context, orgID int64, res chat.Resolution, params chat.Params) (*chat.Response, error) {
	result, err := c.handlers.Execute(ctx, orgID, res.Intent, params)
	if err != nil {
		return nil, err
	}

	answer := biAnswer(res.Intent, result)
	return c.composer.ComposeBI(res.Intent, answer, result.Payload(), uuid.NewString(), res.Confidence, c.nowFunc())
}

// biAnswer renders a one-line summary of the analytic result.
func biAnswer(intent string, result *analytics.Result) string {
	if len(result.Rows) == 0 {
		return fmt.Sprintf("%s: no matching data for this period.", result.Definition)
	}
	switch intent {
	case chat.IntentTopSKUsByMargin:
		first := result.Rows[0]
		return fmt.Sprintf("Your strongest SKU is %v with %v gross margin. %s.",
			first["sku"], first["gross_margin"], result.Definition)
	case chat.IntentStockoutRisk:
		return fmt.Sprintf("%d products need attention. %s.", len(result.Rows), result.Definition)
	default:
		return fmt.Sprintf("%s. %d rows.", result.Definition, len(result.Rows))
	}
}

// AnswerHybrid serves the router entrypoint: classify, then answer on the
// chosen route with graceful degradation when the LLM is down.
func (c *Core) AnswerHybrid(ctx context.Context, orgID int64, orgName, message, explicitIntent string, rawParams map[string]interface{}) (*chat.Response, error) {
	decision, err := c.router.Classify(ctx, message, explicitIntent)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("route", string(decision.Route)).
		Float64("confidence", decision.Confidence).
		Msg("core: message routed")

	switch decision.Route {
	case chat.RouteBI:
		return c.AnswerIntent(ctx, orgID, message, explicitIntent, rawParams)
	case chat.RouteRAG:
		return c.answerRAG(ctx, message, decision.Confidence)
	case chat.RouteOpen:
		return c.answerOpen(ctx, orgID, orgName, message, decision.Confidence)
	case chat.RouteMixed:
		return c.answerMixed(ctx, orgID, orgName, message, explicitIntent, rawParams, decision.Confidence)
	}
	return c.composer.ComposeNoAnswer("", nil, c.nowFunc())
}

func (c *Core) answerRAG(ctx context.Context, message string, confidence float64) (*chat.Response, error) {
	snippets, err := c.retriever.Search(ctx, message, c.cfg.RAG.TopK)
	if err != nil {
		log.Warn().Err(err).Msg("core: retriever unavailable")
		return c.composer.ComposeNoAnswer(
			"The document store is not available right now, so I cannot answer from company documents.",
			[]string{"Try a data question instead, like stockout risk or top sellers."},
			c.nowFunc())
	}
	if len(snippets) == 0 {
		return c.composer.ComposeNoAnswer(
			"I could not find anything relevant in the company documents.",
			[]string{"Try rephrasing, or ask a data question instead."},
			c.nowFunc())
	}

	answer, err := c.synthesize(ctx, message, snippets)
	if err != nil {
		return c.degradedOpen(err)
	}
	return c.composer.ComposeRAG(answer, snippets, confidence, c.nowFunc())
}

// synthesize asks the LLM to answer strictly from the retrieved passages.
func (c *Core) synthesize(ctx context.Context, message string, snippets []chat.Snippet) (string, error) {
	var contextBlock string
	budget := c.cfg.RAG.MaxContextChars
	for _, s := range snippets {
		piece := fmt.Sprintf("[%s] %s\n", s.Title, s.Text)
		if budget > 0 && len(contextBlock)+len(piece) > budget {
			break
		}
		contextBlock += piece
	}

	return c.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Answer using only the provided passages. Cite passage titles. If the passages do not contain the answer, say so."},
		{Role: "user", Content: fmt.Sprintf("Passages:\n%s\nQuestion: %s", contextBlock, message)},
	}, llm.ChatOptions{Temperature: 0.2, MaxTokens: 600})
}

func (c *Core) answerOpen(ctx context.Context, orgID int64, orgName, message string, confidence float64) (*chat.Response, error) {
	snapshot := chat.BuildSnapshot(ctx, c.st, orgID, orgName)

	answer, err := c.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You are a concise inventory and sales advisor. Ground every statement in the business context below.\n\n" + snapshot},
		{Role: "user", Content: message},
	}, llm.ChatOptions{Temperature: 0.4, MaxTokens: 600})
	if err != nil {
		return c.degradedOpen(err)
	}
	return c.composer.ComposeOpen(answer, confidence, nil, c.nowFunc())
}

// degradedOpen is the LLM-outage path: still a valid 200 response, marked
// low confidence with an llm_unavailable warning.
func (c *Core) degradedOpen(cause error) (*chat.Response, error) {
	log.Warn().Err(cause).Msg("core: llm unavailable, degrading")
	return c.composer.ComposeOpen(
		"LLM temporarily unavailable. I can still answer data questions directly, like stockout risk or top sellers.",
		0.2,
		[]string{"llm_unavailable"},
		c.nowFunc())
}

func (c *Core) answerMixed(ctx context.Context, orgID int64, orgName, message, explicitIntent string, rawParams map[string]interface{}, confidence float64) (*chat.Response, error) {
	res := c.resolve(ctx, message, explicitIntent, rawParams)
	if !res.Resolved() {
		return c.answerRAG(ctx, message, confidence)
	}
	params, err := chat.ParseParams(res.Intent, res.Params)
	if err != nil {
		if res.Source != "explicit" {
			return c.answerRAG(ctx, message, confidence)
		}
		return nil, err
	}
	result, err := c.handlers.Execute(ctx, orgID, res.Intent, params)
	if err != nil {
		return nil, err
	}

	snippets, _ := c.retriever.Search(ctx, message, c.cfg.RAG.TopK)
	answer := biAnswer(res.Intent, result)
	if len(snippets) > 0 {
		if synth, serr := c.synthesize(ctx, message, snippets); serr == nil {
			answer = fmt.Sprintf("%s %s", answer, synth)
		}
	}
	return c.composer.ComposeMixed(answer, result.Payload(), snippets, uuid.NewString(), confidence, c.nowFunc())
}

// Health reports readiness of the DB and the LLM endpoint.
func (c *Core) Health(ctx context.Context) map[string]string {
	out := map[string]string{"db": "ok", "llm": "ok"}
	if err := c.st.Ping(ctx); err != nil {
		out["db"] = err.Error()
	}
	if err := c.llm.Health(ctx); err != nil {
		out["llm"] = err.Error()
	}
	return out
}
