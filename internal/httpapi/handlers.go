package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"stocksense/internal/chat"
	"stocksense/internal/risk"
	"stocksense/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.core.Health(r.Context())
	status := http.StatusOK
	if checks["db"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	user, err := s.st.Authenticate(r.Context(), s.cfg.SecretKey, body.Email, body.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	claims, err := s.tokens.VerifyRefresh(body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, err := s.st.UserByID(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleChatQuery(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Chat.Enabled {
		writeError(w, http.StatusForbidden, "chat is disabled")
		return
	}

	var body struct {
		Prompt string                 `json:"prompt"`
		Intent string                 `json:"intent"`
		Params map[string]interface{} `json:"params"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.Prompt == "" && body.Intent == "" {
		respondError(w, &chat.ParamError{Field: "prompt", Msg: "prompt or intent is required"})
		return
	}

	claims := claimsFrom(r)
	resp, err := s.core.AnswerIntent(r.Context(), claims.OrgID, body.Prompt, body.Intent, body.Params)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHybridQuery(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Chat.HybridEnabled {
		writeError(w, http.StatusForbidden, "hybrid chat is disabled")
		return
	}

	var body struct {
		Message string                 `json:"message"`
		Intent  string                 `json:"intent"`
		Options map[string]interface{} `json:"options"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.Message == "" && body.Intent == "" {
		respondError(w, &chat.ParamError{Field: "message", Msg: "message or intent is required"})
		return
	}

	claims := claimsFrom(r)
	orgName := s.orgName(r, claims.OrgID)
	resp, err := s.core.AnswerHybrid(r.Context(), claims.OrgID, orgName, body.Message, body.Intent, body.Options)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) orgName(r *http.Request, orgID int64) string {
	orgs, err := s.st.ListOrgs(r.Context())
	if err != nil {
		return ""
	}
	for _, o := range orgs {
		if o.ID == orgID {
			return o.Name
		}
	}
	return ""
}

// handleAnalyticsBundle aggregates the dashboard sections. Each section
// degrades independently.
func (s *Server) handleAnalyticsBundle(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 30, 1, 90)
	if err != nil {
		respondError(w, err)
		return
	}

	claims := claimsFrom(r)
	ctx := r.Context()
	bundle := map[string]interface{}{"days": days}

	if sales, err := s.st.SalesByDay(ctx, claims.OrgID, days); err == nil {
		bundle["daily_sales"] = sales
	} else {
		log.Warn().Err(err).Msg("http: daily sales section unavailable")
	}
	if channels, err := s.st.ChannelPerformance(ctx, claims.OrgID, days); err == nil {
		bundle["channel_performance"] = channels
	} else {
		log.Warn().Err(err).Msg("http: channel section unavailable")
	}
	if top, err := s.st.TopSKUsByMargin(ctx, claims.OrgID, days, 5, true); err == nil {
		bundle["top_skus"] = top
	}
	if bottom, err := s.st.TopSKUsByMargin(ctx, claims.OrgID, days, 5, false); err == nil {
		bundle["bottom_skus"] = bottom
	}
	if counts, err := s.st.CountInventory(ctx, claims.OrgID); err == nil {
		bundle["inventory"] = counts
	}

	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleAnalyticsSales(w http.ResponseWriter, r *http.Request) {
	days, err := salesWindow(r)
	if err != nil {
		respondError(w, err)
		return
	}

	claims := claimsFrom(r)
	sales, err := s.st.SalesByDay(r.Context(), claims.OrgID, days)
	if err != nil {
		respondError(w, err)
		return
	}
	channels, err := s.st.ChannelPerformance(r.Context(), claims.OrgID, days)
	if err != nil {
		respondError(w, err)
		return
	}
	if want := r.URL.Query().Get("channel"); want != "" {
		filtered := channels[:0]
		for _, c := range channels {
			if c.Channel == want {
				filtered = append(filtered, c)
			}
		}
		channels = filtered
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":                days,
		"daily_sales":         sales,
		"channel_performance": channels,
	})
}

// salesWindow derives the trailing window from either an explicit date range
// or a days count.
func salesWindow(r *http.Request) (int, error) {
	q := r.URL.Query()
	start, end := q.Get("start_date"), q.Get("end_date")
	if start != "" && end != "" {
		s, err1 := time.Parse("2006-01-02", start)
		e, err2 := time.Parse("2006-01-02", end)
		if err1 != nil || err2 != nil || e.Before(s) {
			return 0, &chat.ParamError{Field: "start_date", Msg: "invalid date range"}
		}
		days := int(e.Sub(s).Hours()/24) + 1
		if days > 365 {
			return 0, &chat.ParamError{Field: "end_date", Msg: "range must be at most 365 days"}
		}
		return days, nil
	}
	return intQuery(r, "days", 30, 1, 365)
}

func (s *Server) handleStockoutRisk(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 30, 7, 120)
	if err != nil {
		respondError(w, err)
		return
	}
	strategy, err := risk.ParseStrategy(r.URL.Query().Get("velocity_strategy"))
	if err != nil {
		respondError(w, &chat.ParamError{Field: "velocity_strategy", Msg: err.Error()})
		return
	}

	claims := claimsFrom(r)
	inputs, err := s.st.ReorderInputs(r.Context(), claims.OrgID, nil)
	if err != nil {
		respondError(w, err)
		return
	}

	items := make([]risk.Item, 0, len(inputs))
	for _, in := range inputs {
		item := risk.Classify(in, strategy)
		if item.RiskLevel == risk.BandNone {
			continue
		}
		if item.DaysToStockout != nil && *item.DaysToStockout > float64(days) {
			continue
		}
		items = append(items, item)
	}
	risk.Sort(items)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":              days,
		"velocity_strategy": string(strategy),
		"items":             items,
	})
}

// handleAdjustment records a manual stock adjustment. Negative quantities
// are flipped to out movements by the store.
func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID  int64   `json:"product_id"`
		LocationID *int64  `json:"location_id"`
		Quantity   float64 `json:"quantity"`
		Reference  string  `json:"reference"`
		Notes      string  `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.ProductID <= 0 {
		respondError(w, &chat.ParamError{Field: "product_id", Msg: "is required"})
		return
	}
	if body.Quantity == 0 {
		respondError(w, &chat.ParamError{Field: "quantity", Msg: "must be non-zero"})
		return
	}

	claims := claimsFrom(r)
	id, err := s.st.BulkAdjust(r.Context(), store.Movement{
		OrgID:      claims.OrgID,
		ProductID:  body.ProductID,
		LocationID: body.LocationID,
		Quantity:   body.Quantity,
		Type:       store.MovementAdjust,
		OccurredAt: time.Now().UTC(),
		Reference:  body.Reference,
		Notes:      body.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"movement_id": id})
}

func (s *Server) handleRunDailyAlerts(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if s.cfg.Alerts.CronToken == "" || token != s.cfg.Alerts.CronToken {
		writeError(w, http.StatusUnauthorized, "invalid cron token")
		return
	}

	strategy, err := risk.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		respondError(w, &chat.ParamError{Field: "strategy", Msg: err.Error()})
		return
	}
	channels := splitChannels(r.URL.Query().Get("channels"))

	report, err := s.scheduler.RunDaily(r.Context(), strategy, channels)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func splitChannels(raw string) []string {
	if raw == "" {
		return []string{"email", "webhook"}
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// intQuery parses a bounded integer query parameter with a default.
func intQuery(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, &chat.ParamError{
			Field: name,
			Msg:   "must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max),
		}
	}
	return n, nil
}
