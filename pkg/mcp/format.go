package mcp

import (
	"fmt"
	"strings"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// formatSummary formats usage summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-25s %8s %10s %10s %10s\n",
		"Contract", "Model", "Requests", "Prompt", "Completion", "Total")
	b.WriteString(strings.Repeat("-", 87) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %-25s %8d %10d %10d %10d\n",
			truncate(r.Contract, 20), r.Model, r.RequestCount, r.TotalPrompt, r.TotalCompletion, r.TotalTokens)
	}
	return b.String()
}

// formatRuns formats batch runs as a text table.
func formatRuns(runs []models.RunSummary) string {
	if len(runs) == 0 {
		return "No runs found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-20s %-20s %-20s %8s %10s\n",
		"Run ID", "Contract", "Started", "Last Activity", "Requests", "Tokens")
	b.WriteString(strings.Repeat("-", 121) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-38s %-20s %-20s %-20s %8d %10d\n",
			r.ID, truncate(r.Contract, 20),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.LastActivity.Format("2006-01-02 15:04:05"),
			r.RequestCount, r.TotalTokens)
	}
	return b.String()
}

// formatRunRequests formats the per-function requests of a run.
func formatRunRequests(reqs []models.UsageRecord) string {
	if len(reqs) == 0 {
		return "No requests found for this run."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-20s %-20s %10s %10s %10s\n",
		"Function", "Model", "Time", "Prompt", "Completion", "Total")
	b.WriteString(strings.Repeat("-", 99) + "\n")
	for _, r := range reqs {
		fmt.Fprintf(&b, "%-24s %-20s %-20s %10d %10d %10d\n",
			truncate(r.Function, 24), truncate(r.Model, 20),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.PromptTokens, r.CompletionTokens, r.TotalTokens)
	}
	return b.String()
}

// formatBudgetStatus formats one contract's budget statuses as a text table.
func formatBudgetStatus(contract string, statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return fmt.Sprintf("%s: no budget policies apply.\n", contract)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-15s %-8s %12s %12s %12s %6s\n",
		"Contract", "Model", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 92) + "\n")
	for _, s := range statuses {
		pct := float64(0)
		if s.Policy.MaxTokens > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxTokens) * 100
		}
		model := s.Policy.Model
		if model == "" {
			model = "(any)"
		}
		fmt.Fprintf(&b, "%-20s %-15s %-8s %12d %12d %12d %5.1f%%\n",
			truncate(contract, 20), truncate(model, 15), s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining, pct)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics (%s: %s)\n"+
		"  Entries:     %d\n"+
		"  Hits:        %d\n"+
		"  Misses:      %d\n"+
		"  Read errors: %d\n"+
		"  Hit Rate:    %.1f%%\n",
		stats.Backend, stats.Location, stats.Entries, stats.Hits, stats.Misses, stats.ReadErrors, hitRate)
}

// formatCostReport formats cost rows with a total line.
func formatCostReport(reports []models.CostReport) string {
	if len(reports) == 0 {
		return "No cost data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-25s %8s %12s %10s\n", "Contract", "Model", "Requests", "Tokens", "Est. Cost")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	var total float64
	for _, r := range reports {
		fmt.Fprintf(&b, "%-20s %-25s %8d %12d $%9.4f\n",
			truncate(r.Contract, 20), r.Model, r.RequestCount, r.TotalTokens, r.EstimatedCost)
		total += r.EstimatedCost
	}
	b.WriteString(strings.Repeat("-", 80) + "\n")
	fmt.Fprintf(&b, "%68s $%9.4f\n", "Total:", total)
	return b.String()
}

// formatBatch summarizes a generation run.
func formatBatch(res models.BatchResult, dir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s for %s: %d generated, %d failed\n",
		res.RunID, res.Contract, len(res.Succeeded()), len(res.Failed()))
	for _, o := range res.Outcomes {
		status := "ok"
		switch {
		case !o.OK():
			status = "FAILED: " + o.Reason()
		case o.FromCache:
			status = "ok (cached)"
		case o.CacheErr != nil:
			status = "ok (not cached: " + o.CacheErr.Error() + ")"
		}
		fmt.Fprintf(&b, "  %-30s %s\n", o.Function.Name, status)
	}
	fmt.Fprintf(&b, "Server written to %s\n", dir)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
