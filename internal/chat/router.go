package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"stocksense/internal/llm"
)

// Route classifies where a chat message should be answered.
type Route string

const (
	RouteRAG      Route = "RAG"
	RouteOpen     Route = "OPEN"
	RouteBI       Route = "BI"
	RouteMixed    Route = "MIXED"
	RouteNoAnswer Route = "NO_ANSWER"
)

// Decision is the router's verdict for one message.
type Decision struct {
	Route      Route   `json:"route"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Embedder is the slice of the LLM client the router needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Router thresholds per the scoring contract.
const (
	ragThreshold  = 0.25
	openThreshold = 0.20
)

// docKeywords signal document-grounded questions.
var docKeywords = []string{
	"policy", "policies", "document", "manual", "contract", "agreement",
	"warranty", "return", "refund", "terms", "procedure", "sop", "handbook",
}

// categoryExemplars seed the embedding-similarity scoring. One entry per
// routing category.
var categoryExemplars = map[string][]string{
	"doc_qna": {
		"what does our return policy say about damaged goods",
		"summarize the supplier agreement with Acme",
		"where is the procedure for cycle counts documented",
	},
	"open_chat": {
		"how is the business doing",
		"any advice on managing inventory",
		"what should I focus on this week",
	},
}

// Router classifies messages as RAG, OPEN, BI, MIXED or NO_ANSWER. Exemplar
// embeddings are computed lazily and cached by hash of the exemplar set,
// immutable after load, so concurrent reads are safe.
type Router struct {
	embedder   Embedder
	chatter    Chatter
	embeddings bool
	tiebreaker bool

	mu    sync.Mutex
	cache map[string]map[string][][]float64 // exemplar-set hash -> category -> vectors
}

func NewRouter(embedder Embedder, chatter Chatter, embeddingsEnabled, tiebreakerEnabled bool) *Router {
	return &Router{
		embedder:   embedder,
		chatter:    chatter,
		embeddings: embeddingsEnabled,
		tiebreaker: tiebreakerEnabled,
		cache:      make(map[string]map[string][][]float64),
	}
}

// Classify scores the message. An explicit intent short-circuits to BI; the
// intent must be a member of the registered set.
func (r *Router) Classify(ctx context.Context, message, explicitIntent string) (Decision, error) {
	if explicitIntent != "" {
		if !IsValidIntent(explicitIntent) {
			return Decision{Route: RouteNoAnswer, Confidence: 0, Reason: "unknown intent"},
				&ParamError{Field: "intent", Msg: fmt.Sprintf("%q is not registered", explicitIntent)}
		}
		return Decision{Route: RouteBI, Confidence: 1.0, Reason: "explicit intent"}, nil
	}

	docScore := keywordFraction(message, docKeywords)

	var docEmb, openEmb float64
	if r.embeddings && r.embedder != nil {
		var err error
		docEmb, openEmb, err = r.embeddingScores(ctx, message)
		if err != nil {
			log.Debug().Err(err).Msg("router: embedding scores unavailable")
		}
	}

	ragConfidence := 0.6*docScore + 0.4*docEmb
	openConfidence := 0.4 * openEmb

	switch {
	case ragConfidence >= ragThreshold:
		return Decision{Route: RouteRAG, Confidence: ragConfidence, Reason: "document keywords and similarity"}, nil
	case openConfidence >= openThreshold:
		return Decision{Route: RouteOpen, Confidence: openConfidence, Reason: "open-chat similarity"}, nil
	}

	if r.tiebreaker && r.chatter != nil {
		if d, ok := r.llmTiebreak(ctx, message); ok {
			return d, nil
		}
	}

	return Decision{Route: RouteOpen, Confidence: 0.3, Reason: "fallback"}, nil
}

// keywordFraction is the fraction of the keyword list found in the message.
func keywordFraction(message string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	m := strings.ToLower(message)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(m, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// embeddingScores returns the max cosine similarity between the message and
// each category's exemplars.
func (r *Router) embeddingScores(ctx context.Context, message string) (docScore, openScore float64, err error) {
	exemplars, err := r.exemplarEmbeddings(ctx)
	if err != nil {
		return 0, 0, err
	}

	msgVecs, err := r.embedder.Embed(ctx, []string{message})
	if err != nil || len(msgVecs) != 1 {
		return 0, 0, fmt.Errorf("embed message: %w", err)
	}
	msg := msgVecs[0]

	maxSim := func(vecs [][]float64) float64 {
		best := 0.0
		for _, v := range vecs {
			if sim := cosine(msg, v); sim > best {
				best = sim
			}
		}
		return best
	}

	return maxSim(exemplars["doc_qna"]), maxSim(exemplars["open_chat"]), nil
}

// exemplarEmbeddings embeds each category's exemplars once per exemplar-set
// hash. Both categories are embedded concurrently on first use.
func (r *Router) exemplarEmbeddings(ctx context.Context) (map[string][][]float64, error) {
	key := exemplarSetHash(categoryExemplars)

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	result := make(map[string][][]float64, len(categoryExemplars))
	var resultMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for category, texts := range categoryExemplars {
		g.Go(func() error {
			vecs, err := r.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed %s exemplars: %w", category, err)
			}
			resultMu.Lock()
			result[category] = vecs
			resultMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = result
	r.mu.Unlock()
	return result, nil
}

func exemplarSetHash(exemplars map[string][]string) string {
	h := sha256.New()
	data, _ := json.Marshal(exemplars)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// llmTiebreak asks the LLM to choose RAG or OPEN with a strict JSON
// contract. Anything invalid collapses to the OPEN fallback.
func (r *Router) llmTiebreak(ctx context.Context, message string) (Decision, bool) {
	const system = `Choose how to answer a business question. Respond with VALID JSON only:
{"route": "RAG" or "OPEN", "reason": "..."}
RAG means the answer lives in company documents; OPEN means general business chat.`

	raw, err := r.chatter.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: message},
	}, llm.ChatOptions{JSONObject: true, Temperature: 0, MaxTokens: 120})
	if err != nil {
		return Decision{}, false
	}

	var parsed struct {
		Route  string `json:"route"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return Decision{}, false
	}

	switch parsed.Route {
	case string(RouteRAG):
		return Decision{Route: RouteRAG, Confidence: 0.4, Reason: parsed.Reason}, true
	case string(RouteOpen):
		return Decision{Route: RouteOpen, Confidence: 0.4, Reason: parsed.Reason}, true
	}
	return Decision{}, false
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
