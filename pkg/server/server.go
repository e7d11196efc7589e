// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/cache"
	"github.com/workyterm/workyterm/pkg/council"
	"github.com/workyterm/workyterm/pkg/history"
	"github.com/workyterm/workyterm/pkg/metrics"
	"github.com/workyterm/workyterm/pkg/models"
	"github.com/workyterm/workyterm/pkg/orchestrator"
	"github.com/workyterm/workyterm/pkg/registry"
)

const maxBodyBytes = 1 << 20

// Submitter starts requests.
type Submitter interface {
	Submit(ctx context.Context, text string, opts models.Options) *orchestrator.Handle
}

// Catalog lists and probes providers.
type Catalog interface {
	List() []models.ProviderDescriptor
	ProbeAll(ctx context.Context) map[models.ProviderID]bool
}

// Server is the WorkyTerm HTTP API.
type Server struct {
	addr      string
	engine    Submitter
	providers Catalog
	cache     cache.Store
	history   history.Recorder
	log       zerolog.Logger
	mux       *http.ServeMux
}

// New creates a Server. cache and history may be nil.
func New(addr string, engine Submitter, providers Catalog, store cache.Store, rec history.Recorder, logger zerolog.Logger) *Server {
	s := &Server{
		addr:      addr,
		engine:    engine,
		providers: providers,
		cache:     store,
		history:   rec,
		log:       logger,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/ask", s.handleAsk)
	s.mux.HandleFunc("/v1/providers", s.handleProviders)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/v1/cache", s.handleCacheClear)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("workyterm api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// askRequest is the body of POST /v1/ask.
type askRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
	Task     string `json:"task,omitempty"`
	UseCache *bool  `json:"use_cache,omitempty"`
	Council  bool   `json:"council,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

func (a askRequest) options() (models.Options, error) {
	opts := models.Options{
		ProviderOverride: models.ProviderID(a.Provider),
		UseCache:         a.UseCache == nil || *a.UseCache,
		Council:          a.Council,
	}
	if a.Task != "" {
		cat, ok := models.ParseTaskCategory(a.Task)
		if !ok {
			return opts, fmt.Errorf("unknown task category %q", a.Task)
		}
		opts.TaskHint = cat
	}
	return opts, nil
}

// resultBody is the JSON form of a finished request.
type resultBody struct {
	ID        string              `json:"id"`
	Text      string              `json:"text"`
	Provider  models.ProviderID   `json:"provider"`
	Cached    bool                `json:"cached"`
	ElapsedMs int64               `json:"elapsed_ms"`
	Category  models.TaskCategory `json:"category"`
	Degraded  bool                `json:"degraded,omitempty"`
	Rounds    int                 `json:"rounds,omitempty"`
	Attempts  []models.Attempt    `json:"attempts,omitempty"`
}

func newResultBody(res models.Result) resultBody {
	return resultBody{
		ID:        res.ID,
		Text:      res.Text,
		Provider:  res.Provider,
		Cached:    res.Cached,
		ElapsedMs: res.ElapsedMs(),
		Category:  res.Category,
		Degraded:  res.Degraded,
		Rounds:    res.Rounds,
		Attempts:  res.Attempts,
	}
}

type errorBody struct {
	Message  string           `json:"message"`
	Code     int              `json:"code"`
	Attempts []models.Attempt `json:"attempts,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req askRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts, err := req.options()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	h := s.engine.Submit(r.Context(), req.Text, opts)
	w.Header().Set("X-Request-ID", h.ID())

	if req.Stream {
		s.streamAsk(w, h)
		return
	}

	res, err := h.Wait()
	if err != nil {
		writeAskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultBody(res))
}

// streamAsk relays chunks as server-sent events, then a final result or
// error event.
func (s *Server) streamAsk(w http.ResponseWriter, h *orchestrator.Handle) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Cancel()
		writeJSONError(w, http.StatusInternalServerError, "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for c := range h.Chunks() {
		writeEvent(w, "chunk", c)
		flusher.Flush()
	}

	res, err := h.Wait()
	if err != nil {
		code, body := askError(err)
		body.Code = code
		writeEvent(w, "error", body)
	} else {
		writeEvent(w, "result", newResultBody(res))
	}
	flusher.Flush()
}

func writeEvent(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// askError maps engine errors to HTTP status codes.
func askError(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}
	var ape *orchestrator.AllProvidersError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyRequest),
		errors.Is(err, orchestrator.ErrCouncilUnavailable),
		errors.Is(err, registry.ErrUnknownProvider):
		return http.StatusBadRequest, body
	case errors.As(err, &ape):
		body.Attempts = ape.Attempts
		return http.StatusBadGateway, body
	case errors.Is(err, council.ErrDeliberationFailed):
		return http.StatusBadGateway, body
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, body
	}
	return http.StatusInternalServerError, body
}

func writeAskError(w http.ResponseWriter, err error) {
	code, body := askError(err)
	body.Code = code
	writeJSON(w, code, map[string]errorBody{"error": body})
}

type providerBody struct {
	models.ProviderDescriptor
	Reachable *bool `json:"reachable,omitempty"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var probes map[models.ProviderID]bool
	if r.URL.Query().Get("probe") != "false" {
		probes = s.providers.ProbeAll(r.Context())
		for id, ok := range probes {
			metrics.RecordProbe(string(id), ok)
		}
	}

	list := s.providers.List()
	out := make([]providerBody, 0, len(list))
	for _, d := range list {
		p := providerBody{ProviderDescriptor: d}
		if ok, probed := probes[d.ID]; probed {
			p.Reachable = &ok
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("cache stats failed")
		writeJSONError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  stats.Entries,
		"expired":  stats.Expired,
		"bytes":    stats.Bytes,
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"hit_rate": stats.HitRate(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	expiredOnly := r.URL.Query().Get("expired") == "true"
	if err := s.cache.Clear(r.Context(), expiredOnly); err != nil {
		s.log.Error().Err(err).Msg("cache clear failed")
		writeJSONError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list runs failed")
		writeJSONError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, code)
}
