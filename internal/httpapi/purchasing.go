package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"stocksense/internal/chat"
	"stocksense/internal/reorder"
	"stocksense/internal/risk"
	"stocksense/internal/store"
)

// reorderOptions parses the shared engine tunables from the query string.
func reorderOptions(r *http.Request) (reorder.Options, *int64, error) {
	q := r.URL.Query()

	strategy, err := risk.ParseStrategy(q.Get("strategy"))
	if err != nil {
		return reorder.Options{}, nil, &chat.ParamError{Field: "strategy", Msg: err.Error()}
	}
	opts := reorder.Options{
		Strategy:            strategy,
		IncludeZeroVelocity: q.Get("include_zero_velocity") == "true" || q.Get("include_zero_velocity") == "1",
	}

	if raw := q.Get("horizon_days_override"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			return reorder.Options{}, nil, &chat.ParamError{Field: "horizon_days_override", Msg: "must be between 1 and 365"}
		}
		opts.HorizonOverride = &n
	}
	if raw := q.Get("min_days_cover"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return reorder.Options{}, nil, &chat.ParamError{Field: "min_days_cover", Msg: "must be a non-negative number"}
		}
		opts.MinDaysCover = &v
	}
	if raw := q.Get("max_days_cover"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return reorder.Options{}, nil, &chat.ParamError{Field: "max_days_cover", Msg: "must be a non-negative number"}
		}
		opts.MaxDaysCover = &v
	}

	var locationID *int64
	if raw := q.Get("location_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return reorder.Options{}, nil, &chat.ParamError{Field: "location_id", Msg: "must be an integer"}
		}
		locationID = &id
	}
	return opts, locationID, nil
}

func (s *Server) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	opts, locationID, err := reorderOptions(r)
	if err != nil {
		respondError(w, err)
		return
	}

	claims := claimsFrom(r)
	inputs, err := s.st.ReorderInputs(r.Context(), claims.OrgID, locationID)
	if err != nil {
		respondError(w, err)
		return
	}

	suggestions := reorder.EvaluateAll(inputs, opts)

	totalCost := 0.0
	ordered := 0
	for _, sg := range suggestions {
		if sg.Skipped {
			continue
		}
		ordered++
		if sg.EstimatedCost != nil {
			totalCost += *sg.EstimatedCost
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"summary": map[string]interface{}{
			"products_evaluated":   len(inputs),
			"products_to_order":    ordered,
			"total_estimated_cost": totalCost,
		},
		"parameters": map[string]interface{}{
			"strategy":              string(opts.Strategy),
			"horizon_days_override": opts.HorizonOverride,
			"include_zero_velocity": opts.IncludeZeroVelocity,
			"min_days_cover":        opts.MinDaysCover,
			"max_days_cover":        opts.MaxDaysCover,
		},
	})
}

func (s *Server) handleExplainSuggestion(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(mux.Vars(r)["product_id"], 10, 64)
	if err != nil {
		respondError(w, &chat.ParamError{Field: "product_id", Msg: "must be an integer"})
		return
	}
	opts, _, err := reorderOptions(r)
	if err != nil {
		respondError(w, err)
		return
	}

	claims := claimsFrom(r)
	inputs, err := s.st.ReorderInputs(r.Context(), claims.OrgID, nil)
	if err != nil {
		respondError(w, err)
		return
	}
	for _, in := range inputs {
		if in.ProductID == productID {
			writeJSON(w, http.StatusOK, reorder.Evaluate(in, opts))
			return
		}
	}
	respondError(w, store.ErrNotFound)
}

func (s *Server) handleDraftPO(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductIDs          []int64 `json:"product_ids"`
		Strategy            string  `json:"strategy"`
		HorizonDaysOverride *int    `json:"horizon_days_override"`
		AutoNumber          *bool   `json:"auto_number"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	strategy, err := risk.ParseStrategy(body.Strategy)
	if err != nil {
		respondError(w, &chat.ParamError{Field: "strategy", Msg: err.Error()})
		return
	}
	opts := reorder.Options{Strategy: strategy}
	if body.HorizonDaysOverride != nil {
		n := *body.HorizonDaysOverride
		if n < 1 || n > 365 {
			respondError(w, &chat.ParamError{Field: "horizon_days_override", Msg: "must be between 1 and 365"})
			return
		}
		opts.HorizonOverride = &n
	}

	claims := claimsFrom(r)
	inputs, err := s.st.ReorderInputs(r.Context(), claims.OrgID, nil)
	if err != nil {
		respondError(w, err)
		return
	}
	if len(body.ProductIDs) > 0 {
		wanted := make(map[int64]bool, len(body.ProductIDs))
		for _, id := range body.ProductIDs {
			wanted[id] = true
		}
		filtered := inputs[:0]
		for _, in := range inputs {
			if wanted[in.ProductID] {
				filtered = append(filtered, in)
			}
		}
		inputs = filtered
	}

	now := time.Now().UTC()
	drafts := reorder.GroupBySupplier(reorder.EvaluateAll(inputs, opts), now)

	persist := body.AutoNumber == nil || *body.AutoNumber
	if persist {
		drafts, err = reorder.PersistDrafts(r.Context(), s.st, claims.OrgID, drafts, now)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"draft_pos": drafts,
		"persisted": persist,
	})
}

// poStatusTargets are the states a purchase order can be advanced to. Draft
// is only ever a starting state.
var poStatusTargets = map[string]bool{
	store.POStatusPending:   true,
	store.POStatusOrdered:   true,
	store.POStatusReceived:  true,
	store.POStatusCancelled: true,
}

func (s *Server) handleAdvancePO(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(mux.Vars(r)["po_id"], 10, 64)
	if err != nil {
		respondError(w, &chat.ParamError{Field: "po_id", Msg: "must be an integer"})
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if !poStatusTargets[body.Status] {
		respondError(w, &chat.ParamError{Field: "status", Msg: "must be one of pending, ordered, received, cancelled"})
		return
	}

	claims := claimsFrom(r)
	if err := s.st.AdvancePOStatus(r.Context(), claims.OrgID, poID, body.Status); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": poID, "status": body.Status})
}

func (s *Server) handleDeletePO(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(mux.Vars(r)["po_id"], 10, 64)
	if err != nil {
		respondError(w, &chat.ParamError{Field: "po_id", Msg: "must be an integer"})
		return
	}

	claims := claimsFrom(r)
	if err := s.st.DeletePO(r.Context(), claims.OrgID, poID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
