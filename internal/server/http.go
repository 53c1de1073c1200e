// Package server exposes the HTTP/JSON API: market and position queries
// backed by projections, an operation submit endpoint for tooling and tests,
// and admin endpoints for integrity checks and projection rebuilds.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"PredMarket/internal/ingestion"
	"PredMarket/internal/observability"
	"PredMarket/internal/op"
	"PredMarket/internal/persistence"
	"PredMarket/internal/projection"
	"PredMarket/internal/query"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds all dependencies needed by the HTTP handlers.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.Service
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics

	// SubmitChan feeds parsed operations to the engine goroutine. The submit
	// endpoint shares the ingestion path with NATS; ordering between the two
	// surfaces is whatever the engine channel sees.
	SubmitChan chan<- op.Operation
}

// Server wraps the HTTP API server.
type Server struct {
	httpServer *http.Server
	deps       *Deps
}

func New(addr string, deps *Deps) *Server {
	s := &Server{deps: deps}

	r := mux.NewRouter()

	r.HandleFunc("/v1/markets", s.handleListMarkets).Methods(http.MethodGet)
	r.HandleFunc("/v1/markets/{market_id:[0-9]+}", s.handleGetMarket).Methods(http.MethodGet)
	r.HandleFunc("/v1/markets/{market_id:[0-9]+}/positions/{user_id}", s.handleGetPosition).Methods(http.MethodGet)
	r.HandleFunc("/v1/markets/{market_id:[0-9]+}/vault", s.handleGetVaultBalances).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{user_id}/positions", s.handleListPositions).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{user_id}/balance", s.handleGetBalance).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{user_id}/journal", s.handleJournalHistory).Methods(http.MethodGet)

	r.HandleFunc("/v1/ops/{op_type}", s.handleSubmitOp).Methods(http.MethodPost)

	r.HandleFunc("/v1/admin/integrity", s.handleVerifyIntegrity).Methods(http.MethodGet)
	r.HandleFunc("/v1/admin/oplog", s.handleOpLogInfo).Methods(http.MethodGet)
	r.HandleFunc("/v1/admin/rebuild-balances", s.handleRebuildBalances).Methods(http.MethodPost)

	if deps.HealthChecker != nil {
		r.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		r.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	}
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Query handlers ---

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var category *string
	if c := q.Get("category"); c != "" {
		category = &c
	}

	var resolved *bool
	if rs := q.Get("resolved"); rs != "" {
		v, err := strconv.ParseBool(rs)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid resolved filter")
			return
		}
		resolved = &v
	}

	limit := 50
	if ls := q.Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 || v > 500 {
			s.writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	var after *uint64
	if as := q.Get("after"); as != "" {
		v, err := strconv.ParseUint(as, 10, 64)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid after cursor")
			return
		}
		after = &v
	}

	markets, err := s.deps.QueryService.ListMarkets(r.Context(), category, resolved, limit, after)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "list markets failed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"markets": markets})
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := strconv.ParseUint(mux.Vars(r)["market_id"], 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid market_id")
		return
	}

	market, err := s.deps.QueryService.GetMarket(r.Context(), marketID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "get market failed")
		return
	}
	if market == nil {
		s.writeError(w, r, http.StatusNotFound, "market not found")
		return
	}

	s.writeJSON(w, r, http.StatusOK, market)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	marketID, err := strconv.ParseUint(vars["market_id"], 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid market_id")
		return
	}
	userID, err := uuid.Parse(vars["user_id"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid user_id")
		return
	}

	position, err := s.deps.QueryService.GetPosition(r.Context(), userID, marketID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "get position failed")
		return
	}
	if position == nil {
		s.writeError(w, r, http.StatusNotFound, "no position for user in market")
		return
	}

	s.writeJSON(w, r, http.StatusOK, position)
}

func (s *Server) handleGetVaultBalances(w http.ResponseWriter, r *http.Request) {
	marketID, err := strconv.ParseUint(mux.Vars(r)["market_id"], 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid market_id")
		return
	}

	balances, err := s.deps.QueryService.GetVaultBalances(r.Context(), marketID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "get vault balances failed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, balances)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid user_id")
		return
	}

	positions, err := s.deps.QueryService.ListUserPositions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "list positions failed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid user_id")
		return
	}

	balance, err := s.deps.QueryService.GetBalance(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "get balance failed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, balance)
}

func (s *Server) handleJournalHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid user_id")
		return
	}

	q := r.URL.Query()
	limit := 100
	if ls := q.Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 || v > 500 {
			s.writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	var after *int64
	if as := q.Get("after"); as != "" {
		v, err := strconv.ParseInt(as, 10, 64)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid after cursor")
			return
		}
		after = &v
	}

	entries, err := s.deps.QueryService.GetJournalHistory(r.Context(), userID, limit, after)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "journal history failed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"journals": entries})
}

// --- Submit handler ---

// subjectOpTypes maps the URL op_type segment to parser op type names,
// mirroring the NATS subject suffixes.
var subjectOpTypes = map[string]string{
	"initialize":     "Initialize",
	"create_market":  "CreateMarket",
	"buy_shares":     "BuyShares",
	"resolve_market": "ResolveMarket",
	"claim_winnings": "ClaimWinnings",
	"sweep_funds":    "SweepFunds",
	"withdraw_fees":  "WithdrawFees",
}

func (s *Server) handleSubmitOp(w http.ResponseWriter, r *http.Request) {
	opTypeName, ok := subjectOpTypes[mux.Vars(r)["op_type"]]
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "unknown op_type")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "read body failed")
		return
	}

	raw := ingestion.RawOp{
		Subject:   r.URL.Path,
		Data:      body,
		Timestamp: time.Now(),
	}
	operation, err := ingestion.ParseRawOp(raw, opTypeName)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("parse: %v", err))
		return
	}

	select {
	case s.deps.SubmitChan <- operation:
		s.writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
			"accepted":        true,
			"idempotency_key": operation.IdempotencyKey(),
		})
	case <-r.Context().Done():
		s.writeError(w, r, http.StatusServiceUnavailable, "submit queue full")
	}
}

// --- Admin handlers ---

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "verify integrity failed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleOpLogInfo(w http.ResponseWriter, r *http.Request) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "op log info failed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"last_sequence": latestSeq})
}

func (s *Server) handleRebuildBalances(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildBalances(r.Context(), s.deps.DB); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "rebuild failed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

// --- helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
	s.recordQueryMetrics(r, code)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
	s.recordQueryMetrics(r, code)
}

func (s *Server) recordQueryMetrics(r *http.Request, code int) {
	if s.deps.Metrics == nil {
		return
	}
	endpoint := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			endpoint = tmpl
		}
	}
	s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	if code >= 400 {
		s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
}
