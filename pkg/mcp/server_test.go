package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/models"
)

// fakeAsker records the last request and returns a scripted result.
type fakeAsker struct {
	res  models.Result
	err  error
	text string
	opts models.Options
}

func (f *fakeAsker) Ask(_ context.Context, text string, opts models.Options) (models.Result, error) {
	f.text, f.opts = text, opts
	return f.res, f.err
}

// fakeCatalog implements Catalog for testing.
type fakeCatalog struct {
	descs  []models.ProviderDescriptor
	probes map[models.ProviderID]bool
}

func (f *fakeCatalog) List() []models.ProviderDescriptor { return f.descs }
func (f *fakeCatalog) ProbeAll(context.Context) map[models.ProviderID]bool {
	return f.probes
}

// fakeCache implements cache.Store for testing.
type fakeCache struct {
	stats   models.CacheStats
	cleared *bool
}

func (f *fakeCache) Get(context.Context, models.CacheKey) (models.CacheEntry, bool, error) {
	return models.CacheEntry{}, false, nil
}
func (f *fakeCache) Put(context.Context, models.CacheEntry) error { return nil }
func (f *fakeCache) Clear(_ context.Context, expiredOnly bool) error {
	f.cleared = &expiredOnly
	return nil
}
func (f *fakeCache) Stats(context.Context) (models.CacheStats, error) { return f.stats, nil }
func (f *fakeCache) Close() error { return nil }

// fakeHistory implements history.Recorder for testing.
type fakeHistory struct {
	runs    []models.RunRecord
	summary []models.RunSummary
	limit   int
}

func (f *fakeHistory) Record(context.Context, models.RunRecord) error { return nil }
func (f *fakeHistory) Recent(_ context.Context, limit int) ([]models.RunRecord, error) {
	f.limit = limit
	return f.runs, nil
}
func (f *fakeHistory) Summary(context.Context, time.Time) ([]models.RunSummary, error) {
	return f.summary, nil
}
func (f *fakeHistory) Close() error { return nil }

func newTestServer(asker Asker) *Server {
	if asker == nil {
		asker = &fakeAsker{}
	}
	return New(asker, &fakeCatalog{}, nil, nil, zerolog.Nop(), "test")
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %s, want %s", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != "workyterm" {
		t.Errorf("server name = %s, want workyterm", result.ServerInfo.Name)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability")
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallAsk(t *testing.T) {
	asker := &fakeAsker{res: models.Result{
		Text:     "Jazz began in New Orleans.",
		Provider: models.ProviderClaudeCLI,
		Category: models.TaskResearch,
		Elapsed:  1500 * time.Millisecond,
	}}
	srv := newTestServer(asker)

	result := callTool(t, srv, "ask", `{"prompt":"research the history of jazz","task":"research","no_cache":true}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.HasPrefix(text, "Jazz began in New Orleans.") {
		t.Errorf("answer missing from output: %s", text)
	}
	if !strings.Contains(text, "provider: claude-cli") || !strings.Contains(text, "1500ms") {
		t.Errorf("footer missing from output: %s", text)
	}
	if asker.opts.UseCache {
		t.Error("expected no_cache to disable cache lookup")
	}
	if asker.opts.TaskHint != models.TaskResearch {
		t.Errorf("task hint = %s, want research", asker.opts.TaskHint)
	}
}

func TestToolCallAskErrors(t *testing.T) {
	tests := []struct {
		name string
		args string
		err  error
		want string
	}{
		{"missing prompt", `{}`, nil, "prompt is required"},
		{"bad task", `{"prompt":"hi","task":"poetry"}`, nil, "Unknown task category"},
		{"engine failure", `{"prompt":"hi"}`, errors.New("all providers unavailable (ollama: network-error: refused)"), "ollama: network-error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeAsker{err: tt.err})
			result := callTool(t, srv, "ask", tt.args)
			if !result.IsError {
				t.Error("expected isError=true")
			}
			if !strings.Contains(result.Content[0].Text, tt.want) {
				t.Errorf("expected %q in output, got: %s", tt.want, result.Content[0].Text)
			}
		})
	}
}

func TestToolCallListProviders(t *testing.T) {
	srv := newTestServer(nil)
	srv.providers = &fakeCatalog{
		descs: []models.ProviderDescriptor{
			{ID: models.ProviderOllama, Kind: models.KindLocalEndpoint, Enabled: true, Model: "llama3.2"},
			{ID: models.ProviderOpenAI, Kind: models.KindRemoteAPI},
		},
		probes: map[models.ProviderID]bool{models.ProviderOllama: true},
	}

	text := callTool(t, srv, "list_providers", `{"probe":true}`).Content[0].Text
	if !strings.Contains(text, "llama3.2") || !strings.Contains(text, "up") {
		t.Errorf("unexpected providers output: %s", text)
	}
	if !strings.Contains(text, "openai") {
		t.Errorf("disabled provider missing: %s", text)
	}
}

func TestToolCallCacheNotConfigured(t *testing.T) {
	srv := newTestServer(nil)

	for _, name := range []string{"cache_stats", "clear_cache", "run_history"} {
		result := callTool(t, srv, name, "")
		if !strings.Contains(result.Content[0].Text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, result.Content[0].Text)
		}
	}
}

func TestToolCallCacheStats(t *testing.T) {
	srv := newTestServer(nil)
	srv.cache = &fakeCache{stats: models.CacheStats{Entries: 42, Expired: 3, Bytes: 2048, Hits: 10, Misses: 5}}

	text := callTool(t, srv, "cache_stats", "").Content[0].Text
	if !strings.Contains(text, "42") || !strings.Contains(text, "66.7%") || !strings.Contains(text, "2.0 KiB") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallClearCache(t *testing.T) {
	srv := newTestServer(nil)
	c := &fakeCache{}
	srv.cache = c

	text := callTool(t, srv, "clear_cache", `{"expired_only":true}`).Content[0].Text
	if c.cleared == nil || !*c.cleared {
		t.Error("expected expired-only clear")
	}
	if !strings.Contains(text, "Expired") {
		t.Errorf("unexpected output: %s", text)
	}
}

func TestToolCallRunHistory(t *testing.T) {
	srv := newTestServer(nil)
	h := &fakeHistory{
		runs: []models.RunRecord{
			{ID: "r1", Provider: models.ProviderOllama, Category: models.TaskWriting, Status: "success", Elapsed: 1200 * time.Millisecond, CreatedAt: time.Now()},
		},
		summary: []models.RunSummary{
			{Provider: models.ProviderOllama, Runs: 7, Cached: 2, Failed: 1, AvgElapsed: time.Second},
		},
	}
	srv.history = h

	text := callTool(t, srv, "run_history", `{"limit":5}`).Content[0].Text
	if h.limit != 5 {
		t.Errorf("limit = %d, want 5", h.limit)
	}
	if !strings.Contains(text, "writing") || !strings.Contains(text, "1.2s") {
		t.Errorf("recent runs missing: %s", text)
	}
	if !strings.Contains(text, "7") {
		t.Errorf("summary missing: %s", text)
	}

	result := callTool(t, srv, "run_history", `{"since":"yesterday"}`)
	if !result.IsError {
		t.Error("expected isError=true for bad since date")
	}
}

func TestUnknownTool(t *testing.T) {
	result := callTool(t, newTestServer(nil), "nope", "")
	if !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := newTestServer(nil)

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestInvalidVersion(t *testing.T) {
	srv := newTestServer(nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "1.0", ID: json.RawMessage(`10`), Method: "ping"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid request error, got %+v", resp.Error)
	}
}

// blockingAsker waits for its context to end.
type blockingAsker struct{}

func (blockingAsker) Ask(ctx context.Context, _ string, _ models.Options) (models.Result, error) {
	<-ctx.Done()
	return models.Result{}, ctx.Err()
}

func TestCancelledToolCall(t *testing.T) {
	srv := newTestServer(blockingAsker{})

	in := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"ask","arguments":{"prompt":"hello"}}}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7,"reason":"user"}}` + "\n"

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), strings.NewReader(in), &out) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call did not finish")
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	if string(resp.ID) != "7" {
		t.Errorf("id = %s, want 7", resp.ID)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	json.Unmarshal(data, &result)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "context canceled") {
		t.Errorf("expected cancelled tool error, got %+v", result)
	}
}
