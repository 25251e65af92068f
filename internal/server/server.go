package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/padraorezende/developer-collection-nft-drop/internal/claim"
	"github.com/padraorezende/developer-collection-nft-drop/internal/config"
	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"
	"github.com/padraorezende/developer-collection-nft-drop/internal/hmacauth"
	"github.com/padraorezende/developer-collection-nft-drop/internal/journal"
	"github.com/padraorezende/developer-collection-nft-drop/internal/ledger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Controller is the presentation-facing surface of the claim controller.
type Controller interface {
	State() drop.State
	RequestConnect(ctx context.Context) error
	RequestDisconnect(ctx context.Context) error
	RequestClaim(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Server exposes the drop state and user intents over HTTP.
type Server struct {
	cfg         *config.AppConfig
	ctrl        Controller
	journal     journal.Store
	hmac        *hmacauth.Verifier
	httpServer  *http.Server
	metrics     *metricsRegistry
	notices     *noticeFeed
	stopNotices func()
	logger      *zap.Logger
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

type Deps struct {
	Controller Controller
	Notices    NoticeSource
	Journal    journal.Store
	Gateway    ledger.Gateway
	Registry   *prometheus.Registry
	Logger     *zap.Logger
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:     cfg,
		ctrl:    deps.Controller,
		journal: deps.Journal,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		metrics:     newMetricsRegistry(deps.Registry),
		notices:     newNoticeFeed(noticeBacklog),
		stopNotices: func() {},
		logger:      deps.Logger,
	}

	if deps.Notices != nil {
		stop, err := deps.Notices.SubscribeNotices(s.notices.push)
		if err != nil {
			s.logger.Error("notice subscription failed", zap.Error(err))
		} else {
			s.stopNotices = stop
		}
	}

	if checker, ok := deps.Journal.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := deps.Gateway.(ledger.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.Handle("/api/v1/connect", s.hmac.Middleware(s.intent("connect", s.ctrl.RequestConnect)))
	mux.Handle("/api/v1/disconnect", s.hmac.Middleware(s.intent("disconnect", s.ctrl.RequestDisconnect)))
	mux.Handle("/api/v1/claim", s.hmac.Middleware(s.intent("claim", s.ctrl.RequestClaim)))
	mux.Handle("/api/v1/refresh", s.hmac.Middleware(s.intent("refresh", s.ctrl.Refresh)))
	mux.HandleFunc("/api/v1/claims", s.handleClaims)
	mux.HandleFunc("/api/v1/claims/", s.handleClaim)
	mux.HandleFunc("/api/v1/notices", s.handleNotices)
	mux.Handle("/api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("API listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopNotices()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type stateResponse struct {
	Account    string         `json:"account,omitempty"`
	Phase      drop.Phase     `json:"phase"`
	Busy       bool           `json:"busy"`
	SoldOut    bool           `json:"soldOut"`
	Remaining  *uint64        `json:"remaining,omitempty"`
	Snapshot   *drop.Snapshot `json:"snapshot,omitempty"`
	LastError  drop.ErrorKind `json:"lastError,omitempty"`
	LastNotice *noticeView    `json:"lastNotice,omitempty"`
}

type intentResponse struct {
	Intent string `json:"intent"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.ctrl.State()
	resp := stateResponse{
		Account:    st.Account,
		Phase:      st.Phase,
		Busy:       st.Phase.Busy(),
		Snapshot:   st.Snapshot,
		LastError:  st.LastError,
		LastNotice: s.notices.last(),
	}
	if st.Snapshot != nil {
		remaining := st.Snapshot.Remaining()
		resp.SoldOut = st.Snapshot.SoldOut()
		resp.Remaining = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// intent wraps a controller call. Accepted intents answer 202; the outcome is read from /state.
func (s *Server) intent(name string, call func(context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		err := call(r.Context())
		status := statusFor(err)
		s.metrics.incIntent(name, strconv.Itoa(status))

		resp := intentResponse{Intent: name, Status: "accepted"}
		if err != nil {
			resp.Status = "rejected"
			resp.Error = err.Error()
			s.logger.Debug("intent rejected", zap.String("intent", name), zap.Error(err))
		}
		writeJSON(w, status, resp)
	})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, claim.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, claim.ErrSoldOut):
		return http.StatusGone
	case errors.Is(err, claim.ErrClaimInFlight), errors.Is(err, claim.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, claim.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}

	account := r.URL.Query().Get("account")
	if account == "" {
		account = s.ctrl.State().Account
	}
	entries, err := s.journal.List(r.Context(), account)
	if err != nil {
		s.logger.Error("journal list failed", zap.Error(err))
		http.Error(w, "failed to read claim journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleClaim serves one journal entry by attempt id.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/api/v1/claims/"))
	if err != nil {
		http.Error(w, "invalid claim id", http.StatusBadRequest)
		return
	}
	if s.journal == nil {
		http.Error(w, "claim not found", http.StatusNotFound)
		return
	}

	entry, err := s.journal.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("journal get failed", zap.String("id", id.String()), zap.Error(err))
		http.Error(w, "failed to read claim journal", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "claim not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleNotices returns retained notices newer than ?after=<seq>.
func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid after cursor", http.StatusBadRequest)
			return
		}
		after = parsed
	}
	writeJSON(w, http.StatusOK, s.notices.since(after))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string      `json:"status"`
		Phase    drop.Phase  `json:"phase"`
		RPC      interface{} `json:"rpc"`
		Database interface{} `json:"database"`
	}{
		Status:   status,
		Phase:    s.ctrl.State().Phase,
		RPC:      rpcInfo,
		Database: dbInfo,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
