// Package httpapi exposes the REST surface: auth, chat, analytics,
// purchasing and the internal alert trigger.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"stocksense/internal/alerts"
	"stocksense/internal/auth"
	"stocksense/internal/chat"
	"stocksense/internal/config"
	"stocksense/internal/core"
	"stocksense/internal/store"
)

// Server carries the wired application aggregates.
type Server struct {
	cfg       *config.AppConfig
	st        *store.Store
	core      *core.Core
	tokens    *auth.Manager
	scheduler *alerts.Scheduler
}

func NewServer(cfg *config.AppConfig, st *store.Store, c *core.Core, tokens *auth.Manager, scheduler *alerts.Scheduler) *Server {
	return &Server{cfg: cfg, st: st, core: c, tokens: tokens, scheduler: scheduler}
}

// Handler builds the routed, CORS-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/internal/run-daily-alerts", s.handleRunDailyAlerts).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/chat/query", s.handleChatQuery).Methods(http.MethodPost)
	authed.HandleFunc("/chat2/query", s.handleHybridQuery).Methods(http.MethodPost)
	authed.HandleFunc("/analytics", s.handleAnalyticsBundle).Methods(http.MethodGet)
	authed.HandleFunc("/analytics/sales", s.handleAnalyticsSales).Methods(http.MethodGet)
	authed.HandleFunc("/analytics/stockout-risk", s.handleStockoutRisk).Methods(http.MethodGet)
	authed.HandleFunc("/purchasing/reorder-suggestions", s.handleReorderSuggestions).Methods(http.MethodGet)
	authed.HandleFunc("/purchasing/reorder-suggestions/explain/{product_id:[0-9]+}", s.handleExplainSuggestion).Methods(http.MethodGet)
	authed.HandleFunc("/purchasing/reorder-suggestions/draft-po", s.handleDraftPO).Methods(http.MethodPost)
	authed.HandleFunc("/purchasing/purchase-orders/{po_id:[0-9]+}/status", s.handleAdvancePO).Methods(http.MethodPatch)
	authed.HandleFunc("/purchasing/purchase-orders/{po_id:[0-9]+}", s.handleDeletePO).Methods(http.MethodDelete)
	authed.HandleFunc("/inventory/adjustments", s.handleAdjustment).Methods(http.MethodPost)

	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("http: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type ctxKey int

const claimsKey ctxKey = iota

// claimsFrom returns the verified claims placed by requireAuth.
func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return c
}

// requireAuth verifies the bearer access token and stashes its claims.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http: request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("http: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondError maps domain errors onto the HTTP taxonomy.
func respondError(w http.ResponseWriter, err error) {
	var paramErr *chat.ParamError
	var schemaErr *chat.SchemaValidationError

	switch {
	case errors.As(err, &paramErr):
		writeError(w, http.StatusUnprocessableEntity, paramErr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.As(err, &schemaErr):
		log.Error().Err(err).Msg("http: composed response failed validation")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		log.Error().Err(err).Msg("http: request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &chat.ParamError{Field: "body", Msg: "malformed JSON"}
	}
	return nil
}
