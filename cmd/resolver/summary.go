package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-resolve-collections/config"
	"github.com/aluiziolira/go-resolve-collections/models"
)

func printSummary(w io.Writer, result *models.RunResult, cfg *config.Config, metrics map[string]interface{}) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Resolve complete")
	t.AppendHeader(table.Row{"Metric", "Value"})

	written := int64(0)
	if n, ok := metrics["written_records"].(int64); ok {
		written = n
	}
	duration := result.EndTime.Sub(result.StartTime).Round(time.Millisecond)

	t.AppendRows([]table.Row{
		{"Addresses", result.TotalCount},
		{"Resolved", result.ResolvedCount},
		{"Skipped", result.SkippedCount},
		{"Failed", result.FailedCount},
		{"Canceled", result.CanceledCount},
		{"Records written", written},
		{"Retries", result.RetryCount},
	})
	if len(result.SkipsByStage) > 0 {
		t.AppendRow(table.Row{"Skips by stage", formatCounts(result.SkipsByStage)})
	}
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Errors by type", formatCounts(result.ErrorsByType)})
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		t.AppendRow(table.Row{"Validation", formatCounts(valErrors)})
	}
	if len(result.FailedAddresses) > 0 {
		t.AppendRow(table.Row{"Failed addresses", strings.Join(result.FailedAddresses, ", ")})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Duration", duration})
	t.AppendRow(table.Row{"Output file", cfg.OutputFile})
	if cfg.ArchiveDB != "" {
		t.AppendRow(table.Row{"Archive", cfg.ArchiveDB})
	}

	t.Render()
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
