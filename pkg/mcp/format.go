package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/workyterm/workyterm/pkg/models"
)

// formatAskResult renders the answer followed by a one-line footer.
func formatAskResult(res models.Result) string {
	var b strings.Builder
	b.WriteString(res.Text)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "[provider: %s | category: %s | cached: %t | %dms", res.Provider, res.Category, res.Cached, res.ElapsedMs())
	if res.Rounds > 0 {
		fmt.Fprintf(&b, " | rounds: %d", res.Rounds)
	}
	if res.Degraded {
		b.WriteString(" | degraded")
	}
	b.WriteString("]")
	return b.String()
}

// formatProviders formats providers as a text table. probes may be nil.
func formatProviders(descs []models.ProviderDescriptor, probes map[models.ProviderID]bool) string {
	if len(descs) == 0 {
		return "No providers configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-17s %-8s %-10s %s\n", "Provider", "Kind", "Enabled", "Status", "Model")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, d := range descs {
		status := "-"
		if ok, probed := probes[d.ID]; probed {
			status = "down"
			if ok {
				status = "up"
			}
		}
		model := d.Model
		if model == "" {
			model = "(default)"
		}
		fmt.Fprintf(&b, "%-14s %-17s %-8t %-10s %s\n", d.ID, d.Kind, d.Enabled, status, model)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Expired:  %d\n"+
		"  Size:     %s\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Expired, formatBytes(stats.Bytes), stats.Hits, stats.Misses, stats.HitRate()*100)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// formatRunSummary formats per-provider totals as a text table.
func formatRunSummary(rows []models.RunSummary) string {
	if len(rows) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %8s %8s %8s %12s\n", "Provider", "Runs", "Cached", "Failed", "Avg Latency")
	b.WriteString(strings.Repeat("-", 54) + "\n")
	for _, r := range rows {
		provider := string(r.Provider)
		if provider == "" {
			provider = "(none)"
		}
		fmt.Fprintf(&b, "%-14s %8d %8d %8d %12s\n",
			provider, r.Runs, r.Cached, r.Failed, r.AvgElapsed.Round(time.Millisecond))
	}
	return b.String()
}

// formatRuns formats recent runs as a text table.
func formatRuns(runs []models.RunRecord) string {
	if len(runs) == 0 {
		return "No recent runs."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-14s %-10s %-10s %-7s %10s  %s\n",
		"Time", "Provider", "Category", "Status", "Cached", "Latency", "Error")
	b.WriteString(strings.Repeat("-", 96) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-20s %-14s %-10s %-10s %-7t %10s  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Provider, r.Category, r.Status, r.Cached,
			r.Elapsed.Round(time.Millisecond), truncate(r.Error, 40))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
