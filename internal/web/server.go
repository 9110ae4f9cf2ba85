// Package web is the HTTP surface: JSON handlers over the ingestion
// pipeline, community, and bill services.
package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hliang-dev/splitbill/internal/metrics"
	"github.com/hliang-dev/splitbill/internal/objstore"
	"github.com/hliang-dev/splitbill/internal/service"
	"github.com/hliang-dev/splitbill/internal/store"
)

type Server struct {
	ingest      *service.IngestService
	bills       *service.BillService
	communities *service.CommunityService
	billStore   *store.BillStore
	objects     objstore.ObjectStore
	db          *sql.DB
	metrics     *metrics.Metrics
	mux         *http.ServeMux
	logger      *slog.Logger
}

func NewServer(
	ingest *service.IngestService,
	bills *service.BillService,
	communities *service.CommunityService,
	billStore *store.BillStore,
	objects objstore.ObjectStore,
	database *sql.DB,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	s := &Server{
		ingest:      ingest,
		bills:       bills,
		communities: communities,
		billStore:   billStore,
		objects:     objects,
		db:          database,
		metrics:     m,
		mux:         http.NewServeMux(),
		logger:      logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/ocr", s.handleOCR)

	s.mux.HandleFunc("POST /api/communities", s.handleCreateCommunity)
	s.mux.HandleFunc("POST /api/communities/join", s.handleJoinCommunity)
	s.mux.HandleFunc("GET /api/communities/{id}", s.handleGetCommunity)
	s.mux.HandleFunc("PATCH /api/communities/{id}", s.handleRenameCommunity)
	s.mux.HandleFunc("DELETE /api/communities/{id}/members/{uid}", s.handleRemoveMember)
	s.mux.HandleFunc("POST /api/communities/{id}/receipts", s.handleUploadReceipt)
	s.mux.HandleFunc("GET /api/communities/{id}/bills", s.handleListBills)

	s.mux.HandleFunc("GET /api/bills/{id}", s.handleGetBill)
	s.mux.HandleFunc("GET /api/bills/{id}/image", s.handleGetBillImage)
	s.mux.HandleFunc("PATCH /api/bills/{id}", s.handleUpdateBill)
	s.mux.HandleFunc("DELETE /api/bills/{id}", s.handleDeleteBill)
	s.mux.HandleFunc("POST /api/bills/{id}/items", s.handleAddItem)
	s.mux.HandleFunc("DELETE /api/bills/{id}/items/{itemId}", s.handleDeleteItem)
	s.mux.HandleFunc("POST /api/bills/{id}/items/{itemId}/claim", s.handleToggleClaim)

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		// Label by registered route pattern, not the raw path: paths carry
		// ids and would blow up the label cardinality.
		_, route := s.mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requestLogger(securityHeaders(s.mux)).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps sentinel service errors to their HTTP status.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrForbidden):
		s.respondError(w, http.StatusForbidden, "forbidden")
	default:
		s.logger.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(dst)
}

func closeWithLog(c io.Closer, what string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("close failed", "what", what, "error", err)
	}
}
