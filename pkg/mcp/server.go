// Package mcp serves the engine as Model Context Protocol tools over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/cache"
	"github.com/workyterm/workyterm/pkg/history"
	"github.com/workyterm/workyterm/pkg/models"
)

const maxLineBytes = 1 << 20

// Asker serves a request to completion.
type Asker interface {
	Ask(ctx context.Context, text string, opts models.Options) (models.Result, error)
}

// Catalog lists and probes providers.
type Catalog interface {
	List() []models.ProviderDescriptor
	ProbeAll(ctx context.Context) map[models.ProviderID]bool
}

// Server speaks JSON-RPC 2.0 over newline-delimited stdio. Tool calls run
// concurrently so a long ask does not block pings or cancellations.
type Server struct {
	engine    Asker
	providers Catalog
	cache     cache.Store
	history   history.Recorder
	log       zerolog.Logger
	version   string

	writeMu  sync.Mutex
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// New creates a Server. cache and history may be nil.
func New(engine Asker, providers Catalog, store cache.Store, rec history.Recorder, logger zerolog.Logger, version string) *Server {
	return &Server{
		engine:    engine,
		providers: providers,
		cache:     store,
		history:   rec,
		log:       logger,
		version:   version,
		inflight:  make(map[string]context.CancelFunc),
	}
}

// Run reads requests from r until EOF or ctx is done, writing responses to
// w. In-flight tool calls are finished before Run returns.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.send(w, failure(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != "2.0" {
			s.send(w, failure(req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`))
			continue
		}

		if req.Method == "tools/call" {
			callCtx := s.track(ctx, req.ID)
			wg.Add(1)
			go func(req Request) {
				defer wg.Done()
				defer s.untrack(req.ID)
				s.send(w, s.handleToolsCall(callCtx, &req))
			}(req)
			continue
		}

		if resp := s.dispatch(&req); resp != nil {
			s.send(w, *resp)
		}
	}
	return scanner.Err()
}

// dispatch answers everything except tools/call. Notifications return nil.
func (s *Server) dispatch(req *Request) *Response {
	switch req.Method {
	case "initialize":
		resp := success(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "workyterm", Version: s.version},
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
			Instructions:    "Route questions to local and remote AI providers with the ask tool. Set council to true for a multi-model deliberated answer.",
		})
		return &resp
	case "notifications/initialized":
		return nil
	case "notifications/cancelled":
		s.cancelCall(req.Params)
		return nil
	case "ping":
		resp := success(req.ID, map[string]any{})
		return &resp
	case "tools/list":
		resp := success(req.ID, ToolsListResult{Tools: allTools})
		return &resp
	}
	resp := failure(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	return &resp
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "invalid params")
	}
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return success(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.log.Debug().Str("tool", params.Name).Str("id", string(req.ID)).Msg("tool call")
	return success(req.ID, handler(ctx, s, params.Arguments))
}

// track registers a cancellable context for an in-flight call.
func (s *Server) track(ctx context.Context, id json.RawMessage) context.Context {
	callCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.inflight[string(id)] = cancel
	s.mu.Unlock()
	return callCtx
}

func (s *Server) untrack(id json.RawMessage) {
	s.mu.Lock()
	cancel, ok := s.inflight[string(id)]
	delete(s.inflight, string(id))
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// cancelCall handles notifications/cancelled for a running tool call.
func (s *Server) cancelCall(raw json.RawMessage) {
	var p struct {
		RequestID json.RawMessage `json:"requestId"`
		Reason    string          `json:"reason"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || len(p.RequestID) == 0 {
		return
	}
	s.mu.Lock()
	cancel, ok := s.inflight[string(p.RequestID)]
	s.mu.Unlock()
	if ok {
		s.log.Debug().Str("id", string(p.RequestID)).Str("reason", p.Reason).Msg("tool call cancelled")
		cancel()
	}
}

func (s *Server) send(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}

func success(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func failure(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}
