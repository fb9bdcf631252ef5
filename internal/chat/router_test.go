package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeEmbedder maps document-flavored text near [1,0] and everything else
// near [0,1], so cosine similarity separates the categories cleanly.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		if strings.Contains(lower, "policy") || strings.Contains(lower, "agreement") ||
			strings.Contains(lower, "documented") || strings.Contains(lower, "manual") {
			out[i] = []float64{1, 0}
		} else {
			out[i] = []float64{0, 1}
		}
	}
	return out, nil
}

func TestClassifyExplicitIntent(t *testing.T) {
	r := NewRouter(nil, nil, false, false)

	d, err := r.Classify(context.Background(), "anything", IntentStockoutRisk)
	if err != nil {
		t.Fatalf("explicit intent errored: %v", err)
	}
	if d.Route != RouteBI || d.Confidence != 1.0 {
		t.Errorf("decision = %+v, want BI at 1.0", d)
	}

	_, err = r.Classify(context.Background(), "anything", "bogus_intent")
	var pe *ParamError
	if !errors.As(err, &pe) || pe.Field != "intent" {
		t.Errorf("unregistered intent error = %v, want a parameter error on intent", err)
	}
}

func TestClassifyDocQuestionRoutesToRAG(t *testing.T) {
	r := NewRouter(&fakeEmbedder{}, nil, true, false)

	d, err := r.Classify(context.Background(), "what does our return policy say about damaged goods", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteRAG {
		t.Errorf("route = %s (%.2f), want RAG", d.Route, d.Confidence)
	}
}

func TestClassifyOpenChat(t *testing.T) {
	r := NewRouter(&fakeEmbedder{}, nil, true, false)

	d, err := r.Classify(context.Background(), "how is the business doing overall", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteOpen {
		t.Errorf("route = %s (%.2f), want OPEN", d.Route, d.Confidence)
	}
}

func TestClassifyFallbackWithoutEmbeddings(t *testing.T) {
	r := NewRouter(nil, nil, false, false)

	d, err := r.Classify(context.Background(), "mysterious question", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteOpen || d.Confidence != 0.3 {
		t.Errorf("decision = %+v, want OPEN fallback at 0.3", d)
	}
}

func TestClassifyLLMTiebreak(t *testing.T) {
	chatter := &fakeChatter{reply: `{"route": "RAG", "reason": "lives in the handbook"}`}
	r := NewRouter(nil, chatter, false, true)

	d, err := r.Classify(context.Background(), "where do damaged returns go", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteRAG || d.Confidence != 0.4 {
		t.Errorf("decision = %+v, want tiebroken RAG at 0.4", d)
	}
	if chatter.calls != 1 {
		t.Errorf("chatter called %d times, want 1", chatter.calls)
	}
}

func TestClassifyTiebreakGarbageFallsBack(t *testing.T) {
	r := NewRouter(nil, &fakeChatter{reply: "just send it to BI"}, false, true)

	d, err := r.Classify(context.Background(), "where do damaged returns go", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteOpen || d.Confidence != 0.3 {
		t.Errorf("decision = %+v, want OPEN fallback", d)
	}
}

func TestExemplarEmbeddingsCached(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewRouter(emb, nil, true, false)

	ctx := context.Background()
	if _, err := r.exemplarEmbeddings(ctx); err != nil {
		t.Fatal(err)
	}
	after := emb.calls
	if _, err := r.exemplarEmbeddings(ctx); err != nil {
		t.Fatal(err)
	}
	if emb.calls != after {
		t.Errorf("second lookup re-embedded exemplars: %d -> %d calls", after, emb.calls)
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float64{1, 0}, []float64{1, 0}); got != 1 {
		t.Errorf("identical vectors = %v, want 1", got)
	}
	if got := cosine([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	if got := cosine([]float64{1, 0}, []float64{1, 0, 0}); got != 0 {
		t.Errorf("length mismatch = %v, want 0", got)
	}
}
