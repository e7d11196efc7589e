package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/workyterm/workyterm/pkg/models"
)

// Tool argument structs.

type askArgs struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Task     string `json:"task"`
	NoCache  bool   `json:"no_cache"`
	Council  bool   `json:"council"`
}

type listProvidersArgs struct {
	Probe bool `json:"probe"`
}

type clearCacheArgs struct {
	ExpiredOnly bool `json:"expired_only"`
}

type runHistoryArgs struct {
	Limit int    `json:"limit"`
	Since string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"ask":            handleAsk,
	"list_providers": handleListProviders,
	"cache_stats":    handleCacheStats,
	"clear_cache":    handleClearCache,
	"run_history":    handleRunHistory,
}

func taskNames() []string {
	names := make([]string, len(models.TaskCategories))
	for i, c := range models.TaskCategories {
		names[i] = string(c)
	}
	return names
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "ask",
		Description: "Answer a request with the best available AI provider, falling back through the configured providers, or with a multi-provider council.",
		InputSchema: InputSchema{
			Type:     "object",
			Required: []string{"prompt"},
			Properties: map[string]Property{
				"prompt":   {Type: "string", Description: "The request text"},
				"provider": {Type: "string", Description: "Use only this provider id (optional)"},
				"task":     {Type: "string", Description: "Task category hint (optional, classified from the prompt when omitted)", Enum: taskNames()},
				"no_cache": {Type: "boolean", Description: "Skip the response cache lookup (optional)"},
				"council":  {Type: "boolean", Description: "Deliberate across the council members (optional)"},
			},
		},
	},
	{
		Name:        "list_providers",
		Description: "List configured providers, optionally probing whether each one is reachable.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"probe": {Type: "boolean", Description: "Check executables on PATH and endpoint connectivity (optional)"},
			},
		},
	},
	{
		Name:        "cache_stats",
		Description: "Show response cache statistics (entries, expired, size, hits, misses, hit rate).",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "clear_cache",
		Description: "Remove cached responses.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"expired_only": {Type: "boolean", Description: "Only remove entries past their TTL (optional)"},
			},
		},
	},
	{
		Name:        "run_history",
		Description: "Show recent requests and per-provider totals from the run history.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"limit": {Type: "integer", Description: "Number of recent runs to show (optional, default 20)"},
				"since": {Type: "string", Description: "Start date for totals in YYYY-MM-DD format (optional, defaults to the last 30 days)"},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleAsk(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args askArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.Prompt == "" {
		return errorResult("prompt is required")
	}
	opts := models.Options{
		ProviderOverride: models.ProviderID(args.Provider),
		UseCache:         !args.NoCache,
		Council:          args.Council,
	}
	if args.Task != "" {
		cat, ok := models.ParseTaskCategory(args.Task)
		if !ok {
			return errorResult("Unknown task category: " + args.Task)
		}
		opts.TaskHint = cat
	}

	res, err := s.engine.Ask(ctx, args.Prompt, opts)
	if err != nil {
		return errorResult("Request failed: " + err.Error())
	}
	return textResult(formatAskResult(res))
}

func handleListProviders(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args listProvidersArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	var probes map[models.ProviderID]bool
	if args.Probe {
		probes = s.providers.ProbeAll(ctx)
	}
	return textResult(formatProviders(s.providers.List(), probes))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleClearCache(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	var args clearCacheArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if err := s.cache.Clear(ctx, args.ExpiredOnly); err != nil {
		return errorResult("Error clearing cache: " + err.Error())
	}
	if args.ExpiredOnly {
		return textResult("Expired cache entries removed.")
	}
	return textResult("Cache cleared.")
}

func handleRunHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("Run history is not configured.")
	}
	var args runHistoryArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	summary, err := s.history.Summary(ctx, since)
	if err != nil {
		return errorResult("Error fetching run summary: " + err.Error())
	}
	runs, err := s.history.Recent(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching runs: " + err.Error())
	}
	return textResult(formatRunSummary(summary) + "\n" + formatRuns(runs))
}
