package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/dedup"
	"github.com/X0IVY/prompt-injection-detector/internal/detector"
	"github.com/X0IVY/prompt-injection-detector/internal/digest"
	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
)

const maxImportBytes = 10 << 20

// Deps are the collaborators behind the HTTP API.
type Deps struct {
	Detector *detector.Detector
	Sessions *analyzer.Registry
	// Digests is optional; without it digests are computed but never published.
	Digests  *digest.Publisher
	APIToken string
	Logger   *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
}

func NewServer(port int, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/detector/status", s.status)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.APIToken))

		r.Post("/api/v1/prompts/analyze", s.analyzePrompt)

		r.Route("/api/v1/sessions/{id}", func(r chi.Router) {
			r.Post("/turns", s.recordTurn)
			r.Get("/snapshot", s.getSnapshot)
			r.Delete("/", s.deleteSession)
		})

		r.Route("/api/v1/patterns", func(r chi.Router) {
			r.Get("/", s.listPatterns)
			r.Delete("/", s.clearPatterns)
			r.Get("/stats", s.patternStats)
			r.Get("/export", s.exportPatterns)
			r.Post("/import", s.importPatterns)
			r.Get("/digest", s.patternDigest)
			r.Post("/dedup", s.dedupPatterns)
			r.Get("/{id}", s.getPattern)
			r.Delete("/{id}", s.deletePattern)
		})
	})

	return s
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.port)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":    "prompt-injection-detector",
		"status":   "ok",
		"patterns": s.deps.Detector.Store().Len(),
		"sessions": s.deps.Sessions.Len(),
	})
}

type analyzeRequest struct {
	Text   string `json:"text"`
	Domain string `json:"domain"`
}

func (s *Server) analyzePrompt(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.deps.Detector.AnalyzePrompt(r.Context(), req.Text, req.Domain)
	if err != nil {
		s.logger.Error("analyze prompt failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analyze failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type turnRequest struct {
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
}

type snapshotResponse struct {
	SessionID string             `json:"session_id"`
	Summary   analyzer.Summary   `json:"summary"`
	Snapshot  *analyzer.Snapshot `json:"snapshot,omitempty"`
	Baseline  *analyzer.Snapshot `json:"baseline,omitempty"`
}

func (s *Server) recordTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	a := s.deps.Sessions.Get(id)
	a.RecordTurn(req.UserText, req.AssistantText)
	snap := a.Snapshot()

	writeJSON(w, http.StatusOK, snapshotResponse{SessionID: id, Summary: snap.Summary(), Snapshot: &snap})
}

// getSnapshot handles GET /api/v1/sessions/{id}/snapshot. view=summary
// omits the full snapshot.
func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.deps.Sessions.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session %s not found", id)
		return
	}

	snap := a.Snapshot()
	resp := snapshotResponse{SessionID: id, Summary: snap.Summary()}
	if r.URL.Query().Get("view") != "summary" {
		resp.Snapshot = &snap
		if b, ok := a.Baseline(); ok {
			resp.Baseline = &b
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deps.Sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "session %s not found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listPatterns handles GET /api/v1/patterns. Filters combine: domain,
// since/until (unix ms, inclusive) and suspicious with an optional threshold.
func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	q, err := parsePatternQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, q.run(s.deps.Detector.Store()))
}

func (s *Server) patternStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Detector.Store().Stats())
}

func (s *Server) exportPatterns(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.Detector.Store().ExportJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="patterns.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) importPatterns(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}

	n, err := s.deps.Detector.Store().Import(r.Context(), data)
	if err != nil {
		var ve *patterns.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": ve.Error(),
				"index": ve.Index,
				"field": ve.Field,
			})
			return
		}
		s.logger.Error("import patterns failed", "error", err)
		writeError(w, http.StatusInternalServerError, "import failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n, "total": s.deps.Detector.Store().Len()})
}

func (s *Server) getPattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.deps.Detector.Store().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "pattern %s not found", id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deletePattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.deps.Detector.Store().DeleteByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed: %v", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "pattern %s not found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearPatterns(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Detector.Store().Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clear failed: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type digestResponse struct {
	Clusters  []digest.Cluster `json:"clusters"`
	Count     int              `json:"count"`
	Threshold float64          `json:"threshold"`
	Published bool             `json:"published"`
}

// patternDigest handles GET /api/v1/patterns/digest. publish=true also emits
// the digest on NATS.
func (s *Server) patternDigest(w http.ResponseWriter, r *http.Request) {
	threshold := s.deps.Detector.Threshold()
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid threshold: %v", err)
			return
		}
		threshold = t
	}

	clusters := digest.Build(s.deps.Detector.Store().Export(), threshold)
	resp := digestResponse{Clusters: clusters, Count: len(clusters), Threshold: threshold}

	if r.URL.Query().Get("publish") == "true" && s.deps.Digests != nil {
		if err := s.deps.Digests.Publish(clusters, threshold); err != nil {
			s.logger.Warn("failed to publish digest", "clusters", len(clusters), "error", err)
		} else {
			resp.Published = len(clusters) > 0
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// dedupPatterns handles POST /api/v1/patterns/dedup. It reports near-duplicate
// clusters and only deletes when execute=true.
func (s *Server) dedupPatterns(w http.ResponseWriter, r *http.Request) {
	var threshold float64
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t > 1 {
			writeError(w, http.StatusBadRequest, "invalid threshold %q", v)
			return
		}
		threshold = t
	}
	execute := r.URL.Query().Get("execute") == "true"

	res, err := dedup.New(s.deps.Detector.Store(), s.logger).Run(r.Context(), threshold, execute)
	if err != nil {
		s.logger.Error("dedup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dedup failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type patternQuery struct {
	domain     string
	since      *int64
	until      *int64
	suspicious bool
	threshold  float64
}

func parsePatternQuery(r *http.Request) (patternQuery, error) {
	v := r.URL.Query()
	q := patternQuery{domain: v.Get("domain")}

	for name, dst := range map[string]**int64{"since": &q.since, "until": &q.until} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		ms, err := parseTimestamp(raw)
		if err != nil {
			return q, fmt.Errorf("invalid %s: %v", name, err)
		}
		*dst = &ms
	}

	if raw := v.Get("suspicious"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("invalid suspicious: %v", err)
		}
		q.suspicious = b
	}
	if raw := v.Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, fmt.Errorf("invalid threshold: %v", err)
		}
		q.threshold = t
		q.suspicious = true
	}
	return q, nil
}

// parseTimestamp accepts unix milliseconds or RFC 3339.
func parseTimestamp(raw string) (int64, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("expected unix milliseconds or RFC 3339")
	}
	return t.UnixMilli(), nil
}

func (q patternQuery) run(ps *patterns.Store) []patterns.Record {
	var recs []patterns.Record
	switch {
	case q.suspicious:
		recs = ps.QuerySuspicious(q.threshold)
	case q.domain != "":
		recs = ps.QueryByDomain(q.domain)
	case q.since != nil || q.until != nil:
		recs = ps.QueryByTimeRange(q.bounds())
	default:
		return ps.Export()
	}

	start, end := q.bounds()
	out := []patterns.Record{}
	for _, r := range recs {
		if q.domain != "" && r.Domain != q.domain {
			continue
		}
		if r.Timestamp < start || r.Timestamp > end {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (q patternQuery) bounds() (int64, int64) {
	start, end := int64(math.MinInt64), int64(math.MaxInt64)
	if q.since != nil {
		start = *q.since
	}
	if q.until != nil {
		end = *q.until
	}
	return start, end
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
