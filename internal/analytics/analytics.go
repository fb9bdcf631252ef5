// Package analytics executes the typed analytic handlers behind the chat
// intents. Every handler is org-scoped, prefers the sales-daily mart and
// falls back to base tables when the mart is unavailable.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stocksense/internal/chat"
	"stocksense/internal/store"
)

// Result is the uniform handler output: tabular rows plus the SQL and a
// human definition for the query explainer.
type Result struct {
	Columns    []string                 `json:"columns"`
	Rows       []map[string]interface{} `json:"rows"`
	SQL        string                   `json:"sql"`
	Definition string                   `json:"definition"`
	Tables     []string                 `json:"tables"`
}

// Payload converts a result into the composer's card shape.
func (r *Result) Payload() chat.BIPayload {
	return chat.BIPayload{
		Columns:    r.Columns,
		Rows:       r.Rows,
		SQL:        r.SQL,
		Definition: r.Definition,
		Tables:     r.Tables,
	}
}

// Handlers executes the registered intents against one store.
type Handlers struct {
	st      *store.Store
	nowFunc func() time.Time
}

func New(st *store.Store) *Handlers {
	return &Handlers{st: st, nowFunc: time.Now}
}

// Execute dispatches a validated intent to its handler.
func (h *Handlers) Execute(ctx context.Context, orgID int64, intent string, params chat.Params) (*Result, error) {
	switch p := params.(type) {
	case *chat.TopSKUsParams:
		return h.TopSKUsByMargin(ctx, orgID, p)
	case *chat.StockoutRiskParams:
		return h.StockoutRisk(ctx, orgID, p)
	case *chat.WeekInReviewParams:
		return h.WeekInReview(ctx, orgID)
	case *chat.ReorderSuggestionsParams:
		return h.ReorderSuggestions(ctx, orgID, p)
	case *chat.SlowMoversParams:
		return h.SlowMovers(ctx, orgID, p)
	case *chat.ProductDetailParams:
		return h.ProductDetail(ctx, orgID, p)
	case *chat.QuarterlyForecastParams:
		return h.QuarterlyForecast(ctx, orgID, p)
	case *chat.AnnualBreakdownParams:
		return h.AnnualBreakdown(ctx, orgID, p)
	}
	return nil, fmt.Errorf("no handler for intent %q", intent)
}

// query is one executable SQL variant of a handler. columns fixes the
// output order; map iteration alone is not stable.
type query struct {
	sql        string
	args       []interface{}
	columns    []string
	definition string
	tables     []string
}

// runWithFallback executes the mart query inside a read-only transaction.
// On failure the transaction is rolled back and the base-table fallback
// runs instead, with its definition marked as an approximation.
func (h *Handlers) runWithFallback(ctx context.Context, primary query, fallback *query) (*Result, error) {
	rows, err := h.selectMaps(ctx, primary.sql, primary.args...)
	if err == nil {
		return &Result{
			Columns:    primary.columns,
			Rows:       rows,
			SQL:        primary.sql,
			Definition: primary.definition,
			Tables:     primary.tables,
		}, nil
	}
	if fallback == nil {
		return nil, err
	}

	log.Warn().Err(err).Msg("analytics: mart query failed, using base tables")
	rows, ferr := h.selectMaps(ctx, fallback.sql, fallback.args...)
	if ferr != nil {
		return nil, fmt.Errorf("fallback query: %w", ferr)
	}
	return &Result{
		Columns:    fallback.columns,
		Rows:       rows,
		SQL:        fallback.sql,
		Definition: fallback.definition + " (fallback approximation)",
		Tables:     fallback.tables,
	}, nil
}

// selectMaps runs one query in its own read-only transaction and scans every
// row into a map. Rollback before returning keeps the session clean for a
// subsequent fallback query.
func (h *Handlers) selectMaps(ctx context.Context, q string, args ...interface{}) ([]map[string]interface{}, error) {
	tx, err := h.st.DB().BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		m := map[string]interface{}{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

// normalizeRow converts driver byte slices into strings so rows marshal as
// JSON text rather than base64.
func normalizeRow(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			m[k] = string(b)
		}
	}
	return m
}

// periodDays maps a period token onto a trailing day count.
func periodDays(period string) int {
	switch period {
	case "1d":
		return 1
	case "30d":
		return 30
	default:
		return 7
	}
}
