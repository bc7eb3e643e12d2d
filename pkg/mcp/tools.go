package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/i-dream-of-ai/sparkmango/pkg/generator"
	"github.com/i-dream-of-ai/sparkmango/pkg/tracker"
)

// Tool argument structs.

type generateArgs struct {
	ABIPath      string `json:"abi_path"`
	OutputDir    string `json:"output_dir"`
	ContractName string `json:"contract_name"`
	Address      string `json:"address"`
	Module       string `json:"module"`
}

type usageArgs struct {
	Contract string `json:"contract"`
	Runs     bool   `json:"runs"`
	RunID    string `json:"run_id"`
}

type contractArgs struct {
	Contract string `json:"contract"`
}

type costReportArgs struct {
	Contract string `json:"contract"`
	Since    string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"sparkmango_generate":    handleGenerate,
	"sparkmango_cache_stats": handleCacheStats,
	"sparkmango_cache_clear": handleCacheClear,
	"sparkmango_usage":       handleUsage,
	"sparkmango_budget":      handleBudget,
	"sparkmango_cost_report": handleCostReport,
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "sparkmango_generate",
		Annotations: writes,
		Description: "Generate a contract server from an ABI file: one validated Go implementation per function, plus the server scaffold.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"abi_path", "output_dir", "contract_name"},
			"properties": map[string]any{
				"abi_path":      stringProp("Path to the ABI JSON file (raw array or build artifact)"),
				"output_dir":    stringProp("Directory to write the server into"),
				"contract_name": stringProp("Contract name"),
				"address":       stringProp("Deployed contract address (optional)"),
				"module":        stringProp("Go module path of the server (optional)"),
			},
		},
	},
	{
		Name:        "sparkmango_cache_stats",
		Annotations: readOnly,
		Description: "Show artifact cache statistics (backend, entries, hits, misses, read errors).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "sparkmango_cache_clear",
		Annotations: destructive,
		Description: "Remove every cached implementation and report how many were removed.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "sparkmango_usage",
		Annotations: readOnly,
		Description: "Show generation token usage by contract and model, the list of runs, or the requests of one run.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contract": stringProp("Filter by contract (optional)"),
				"runs": map[string]any{
					"type":        "boolean",
					"description": "List runs instead of the usage summary",
				},
				"run_id": stringProp("Show per-function requests of this run (optional)"),
			},
		},
	},
	{
		Name:        "sparkmango_budget",
		Annotations: readOnly,
		Description: "Show token budget status (usage vs limits), for one contract or every contract with recorded usage.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contract": stringProp("Contract name (optional)"),
			},
		},
	},
	{
		Name:        "sparkmango_cost_report",
		Annotations: readOnly,
		Description: "Show estimated generation costs grouped by contract and model.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contract": stringProp("Filter by contract (optional)"),
				"since":    stringProp("Start date in YYYY-MM-DD format (optional, defaults to start of month)"),
			},
		},
	},
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func handleGenerate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.builder == nil {
		return textResult("Generation is not configured.")
	}
	var args generateArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.ABIPath == "" || args.OutputDir == "" || args.ContractName == "" {
		return errorResult("abi_path, output_dir and contract_name are required")
	}

	res, err := s.builder.BuildProject(ctx, generator.ProjectRequest{
		ABIPath:   args.ABIPath,
		OutputDir: args.OutputDir,
		Contract:  args.ContractName,
		Address:   args.Address,
		Module:    args.Module,
	})
	if err != nil {
		return errorResult("Error generating server: " + err.Error())
	}
	out := textResult(formatBatch(res.Batch, args.OutputDir))
	out.StructuredContent = summarizeBatch(res)
	out.IsError = len(res.Batch.Failed()) > 0
	return out
}

// generateSummary is the structured form of a generate call.
type generateSummary struct {
	RunID     string            `json:"run_id"`
	Contract  string            `json:"contract"`
	Generated []string          `json:"generated"`
	Cached    []string          `json:"cached"`
	Failed    map[string]string `json:"failed"`
	Files     []string          `json:"files"`
}

func summarizeBatch(res generator.ProjectResult) generateSummary {
	sum := generateSummary{
		RunID:     res.Batch.RunID,
		Contract:  res.Batch.Contract,
		Generated: []string{},
		Cached:    []string{},
		Failed:    map[string]string{},
		Files:     res.Files,
	}
	for _, o := range res.Batch.Outcomes {
		switch {
		case !o.OK():
			sum.Failed[o.Function.Name] = o.Reason()
		case o.FromCache:
			sum.Cached = append(sum.Cached, o.Function.Name)
		default:
			sum.Generated = append(sum.Generated, o.Function.Name)
		}
	}
	return sum
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	out := textResult(formatCacheStats(stats))
	out.StructuredContent = stats
	return out
}

func handleCacheClear(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	n, err := s.cache.Clear(ctx)
	if err != nil {
		return errorResult("Error clearing cache: " + err.Error())
	}
	return textResult(fmt.Sprintf("Removed %d cached implementations.", n))
}

func handleUsage(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args usageArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	switch {
	case args.RunID != "":
		reqs, err := s.tracker.RunRequests(ctx, args.RunID)
		if err != nil {
			return errorResult("Error fetching run detail: " + err.Error())
		}
		return textResult(formatRunRequests(reqs))
	case args.Runs:
		runs, err := s.tracker.ListRuns(ctx, args.Contract)
		if err != nil {
			return errorResult("Error fetching runs: " + err.Error())
		}
		return textResult(formatRuns(runs))
	default:
		rows, err := s.tracker.Summary(ctx, args.Contract)
		if err != nil {
			return errorResult("Error fetching usage: " + err.Error())
		}
		return textResult(formatSummary(rows))
	}
}

func handleBudget(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	var args contractArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	contracts := []string{args.Contract}
	if args.Contract == "" {
		var err error
		contracts, err = tracker.Contracts(ctx, s.tracker)
		if err != nil {
			return errorResult("Error listing contracts: " + err.Error())
		}
	}

	var text string
	for _, c := range contracts {
		statuses, err := s.enforcer.Status(ctx, c)
		if err != nil {
			return errorResult("Error fetching budget status: " + err.Error())
		}
		text += formatBudgetStatus(c, statuses)
	}
	if text == "" {
		text = "No budget usage recorded."
	}
	return textResult(text)
}

func handleCostReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args costReportArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	since := beginningOfMonth()
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	reports, err := s.tracker.CostReport(ctx, since, args.Contract)
	if err != nil {
		return errorResult("Error fetching cost report: " + err.Error())
	}
	tracker.ApplyPricing(reports, s.pricing)
	return textResult(formatCostReport(reports))
}

func beginningOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
