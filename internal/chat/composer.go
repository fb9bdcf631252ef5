package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Card is one structured attachment on a chat answer.
type Card struct {
	Type  string      `json:"type"`
	Title string      `json:"title,omitempty"`
	Data  interface{} `json:"data"`
}

// DocRef identifies a document snippet behind a RAG answer.
type DocRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Quote string `json:"quote,omitempty"`
}

// DataProvenance names the tables behind an analytic answer.
type DataProvenance struct {
	Tables      []string `json:"tables"`
	QueryID     string   `json:"query_id,omitempty"`
	RefreshedAt string   `json:"refreshed_at,omitempty"`
}

// Provenance carries the data and/or document sources of an answer.
type Provenance struct {
	Data *DataProvenance `json:"data,omitempty"`
	Docs []DocRef        `json:"docs,omitempty"`
}

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Confidence is the answer confidence with a coarse level for display.
type Confidence struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

// ConfidenceFrom buckets a score into a level.
func ConfidenceFrom(score float64) Confidence {
	level := ConfidenceLow
	switch {
	case score >= 0.75:
		level = ConfidenceHigh
	case score >= 0.5:
		level = ConfidenceMedium
	}
	return Confidence{Score: score, Level: level}
}

// Freshness stamps when the answer was generated.
type Freshness struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// Response is the unified chat response contract. Every emitted object must
// pass schema validation before being returned; a validation failure is a
// server-side bug, never a silent empty answer.
type Response struct {
	Route      string     `json:"route"`
	Intent     string     `json:"intent,omitempty"`
	Answer     string     `json:"answer"`
	Cards      []Card     `json:"cards,omitempty"`
	Provenance Provenance `json:"provenance"`
	Confidence Confidence `json:"confidence"`
	FollowUps  []string   `json:"follow_ups"`
	Freshness  Freshness  `json:"freshness"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// BIPayload is the analytic result a BI answer embeds as cards.
type BIPayload struct {
	Columns    []string                 `json:"columns"`
	Rows       []map[string]interface{} `json:"rows"`
	SQL        string                   `json:"sql"`
	Definition string                   `json:"definition"`
	Tables     []string                 `json:"-"`
}

// Snippet is one retrieved document passage.
type Snippet struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SchemaValidationError marks a composer bug: the produced response did not
// match the unified contract. It must surface as a 500.
type SchemaValidationError struct {
	Err error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("composed response failed schema validation: %v", e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// Composer shapes answers into the unified contract and validates each one
// against the JSON schema before it leaves the process.
type Composer struct {
	resolved *jsonschema.Resolved
}

// NewComposer builds the composer and resolves the response schema once.
func NewComposer() (*Composer, error) {
	resolved, err := responseSchema().Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve response schema: %w", err)
	}
	return &Composer{resolved: resolved}, nil
}

// responseSchema is the unified chat response contract.
func responseSchema() *jsonschema.Schema {
	str := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }
	num := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "number"} }

	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"route", "answer", "provenance", "confidence", "follow_ups"},
		Properties: map[string]*jsonschema.Schema{
			"route": {
				Type: "string",
				Enum: []interface{}{"RAG", "OPEN", "BI", "MIXED", "NO_ANSWER"},
			},
			"intent": str(),
			"answer": {Type: "string", MinLength: ptr(1)},
			"cards": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"type"},
					Properties: map[string]*jsonschema.Schema{
						"type":  str(),
						"title": str(),
					},
				},
			},
			"provenance": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"data": {
						Type:     "object",
						Required: []string{"tables"},
						Properties: map[string]*jsonschema.Schema{
							"tables":       {Type: "array", Items: str()},
							"query_id":     str(),
							"refreshed_at": str(),
						},
					},
					"docs": {
						Type: "array",
						Items: &jsonschema.Schema{
							Type:     "object",
							Required: []string{"title", "url"},
							Properties: map[string]*jsonschema.Schema{
								"title": str(),
								"url":   str(),
								"quote": str(),
							},
						},
					},
				},
			},
			"confidence": {
				Type:     "object",
				Required: []string{"score", "level"},
				Properties: map[string]*jsonschema.Schema{
					"score": num(),
					"level": {
						Type: "string",
						Enum: []interface{}{ConfidenceHigh, ConfidenceMedium, ConfidenceLow},
					},
				},
			},
			"follow_ups": {Type: "array", Items: str(), MinItems: ptr(1)},
			"freshness": {
				Type:     "object",
				Required: []string{"generated_at"},
				Properties: map[string]*jsonschema.Schema{
					"generated_at": str(),
				},
			},
			"warnings": {Type: "array", Items: str()},
		},
	}
}

func ptr(n int) *int { return &n }

// Validate checks a response against the unified schema.
func (c *Composer) Validate(resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return &SchemaValidationError{Err: err}
	}
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &SchemaValidationError{Err: err}
	}
	if err := c.resolved.Validate(instance); err != nil {
		return &SchemaValidationError{Err: err}
	}
	return nil
}

func (c *Composer) finish(resp *Response, now time.Time) (*Response, error) {
	resp.Freshness = Freshness{GeneratedAt: now.UTC()}
	if err := c.Validate(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ComposeBI embeds an analytic payload as cards, with table provenance.
func (c *Composer) ComposeBI(intent, answer string, payload BIPayload, queryID string, score float64, now time.Time) (*Response, error) {
	return c.finish(&Response{
		Route:  string(RouteBI),
		Intent: intent,
		Answer: answer,
		Cards: []Card{
			{Type: "table", Title: payload.Definition, Data: payload},
		},
		Provenance: Provenance{
			Data: &DataProvenance{
				Tables:      payload.Tables,
				QueryID:     queryID,
				RefreshedAt: now.UTC().Format(time.RFC3339),
			},
		},
		Confidence: ConfidenceFrom(score),
		FollowUps: []string{
			"Want this broken down by product?",
			"Should I compare with the previous period?",
		},
	}, now)
}

// ComposeRAG attaches up to ten citation snippets.
func (c *Composer) ComposeRAG(answer string, snippets []Snippet, score float64, now time.Time) (*Response, error) {
	if len(snippets) > 10 {
		snippets = snippets[:10]
	}
	docs := make([]DocRef, 0, len(snippets))
	for _, s := range snippets {
		docs = append(docs, DocRef{Title: s.Title, URL: s.URL, Quote: truncateQuote(s.Text)})
	}

	return c.finish(&Response{
		Route:  string(RouteRAG),
		Answer: answer,
		Cards: []Card{
			{Type: "citations", Data: snippets},
		},
		Provenance: Provenance{Docs: docs},
		Confidence: ConfidenceFrom(score),
		FollowUps: []string{
			"Want the full document?",
			"Should I look for related policies?",
		},
	}, now)
}

// ComposeOpen is the plain chat variant with fixed follow-ups.
func (c *Composer) ComposeOpen(answer string, score float64, warnings []string, now time.Time) (*Response, error) {
	return c.finish(&Response{
		Route:      string(RouteOpen),
		Answer:     answer,
		Provenance: Provenance{},
		Confidence: ConfidenceFrom(score),
		FollowUps: []string{
			"Which products are at risk of stockout?",
			"Show me last week's top sellers.",
		},
		Warnings: warnings,
	}, now)
}

// ComposeMixed carries both data and document provenance.
func (c *Composer) ComposeMixed(answer string, payload BIPayload, snippets []Snippet, queryID string, score float64, now time.Time) (*Response, error) {
	docs := make([]DocRef, 0, len(snippets))
	for _, s := range snippets {
		docs = append(docs, DocRef{Title: s.Title, URL: s.URL, Quote: truncateQuote(s.Text)})
	}

	return c.finish(&Response{
		Route:  string(RouteMixed),
		Answer: answer,
		Cards: []Card{
			{Type: "table", Title: payload.Definition, Data: payload},
			{Type: "citations", Data: snippets},
		},
		Provenance: Provenance{
			Data: &DataProvenance{
				Tables:      payload.Tables,
				QueryID:     queryID,
				RefreshedAt: now.UTC().Format(time.RFC3339),
			},
			Docs: docs,
		},
		Confidence: ConfidenceFrom(score),
		FollowUps: []string{
			"Want more detail on the numbers?",
			"Should I pull the source documents?",
		},
	}, now)
}

// ComposeNoAnswer explains why nothing could be answered and suggests
// alternatives. The answer is never empty.
func (c *Composer) ComposeNoAnswer(reason string, followUps []string, now time.Time) (*Response, error) {
	if reason == "" {
		reason = "I could not match that question to any data or documents."
	}
	if len(followUps) == 0 {
		followUps = []string{
			"Try asking about stockout risk, top sellers, or reorder suggestions.",
		}
	}
	return c.finish(&Response{
		Route:      string(RouteNoAnswer),
		Answer:     reason,
		Provenance: Provenance{},
		Confidence: ConfidenceFrom(0.1),
		FollowUps:  followUps,
	}, now)
}

func truncateQuote(s string) string {
	const max = 240
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
