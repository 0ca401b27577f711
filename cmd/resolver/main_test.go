package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-resolve-collections/config"
	"github.com/aluiziolira/go-resolve-collections/models"
	"github.com/aluiziolira/go-resolve-collections/pipeline"
)

func TestRootCmdDefaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--no-proxy", "--workers", "3", "-v", "--format", "DUAL"}))

	noProxy, err := cmd.Flags().GetBool("no-proxy")
	require.NoError(t, err)
	require.True(t, noProxy)

	addresses, err := cmd.Flags().GetString("addresses")
	require.NoError(t, err)
	require.Equal(t, "BotRes/Addresses.csv", addresses)
}

func TestBuildConfig(t *testing.T) {
	opts := &options{
		addresses:  "in.csv",
		output:     "out/Valid.csv",
		format:     "DUAL",
		settings:   "Settings.json",
		userAgents: "ua.txt",
		noProxy:    true,
		workers:    3,
		maxRetries: 1,
		logFile:    "",
	}
	cfg := buildConfig(opts)

	require.Equal(t, "dual", cfg.OutputFormat)
	require.False(t, cfg.UseProxy)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 1, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())

	opts.workers = -1
	require.Error(t, buildConfig(opts).Validate())
}

func TestCreateWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		format  string
		archive string
		wantErr bool
		check   func(t *testing.T, w pipeline.OutputWriter)
	}{
		{name: "pipe", format: "pipe", check: func(t *testing.T, w pipeline.OutputWriter) {
			require.IsType(t, &pipeline.PipeWriter{}, w)
		}},
		{name: "jsonl", format: "jsonl", check: func(t *testing.T, w pipeline.OutputWriter) {
			require.IsType(t, &pipeline.JSONLWriter{}, w)
		}},
		{name: "dual", format: "dual", check: func(t *testing.T, w pipeline.OutputWriter) {
			require.IsType(t, &pipeline.MultiWriter{}, w)
			_, err := os.Stat(filepath.Join(dir, "dual.jsonl"))
			require.NoError(t, err)
		}},
		{name: "archive", format: "pipe", archive: "archive.db", check: func(t *testing.T, w pipeline.OutputWriter) {
			require.IsType(t, &pipeline.MultiWriter{}, w)
		}},
		{name: "unknown", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputFormat = tt.format
			cfg.OutputFile = filepath.Join(dir, tt.name+".csv")
			if tt.archive != "" {
				cfg.ArchiveDB = filepath.Join(dir, tt.archive)
			}

			w, err := createWriter(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = w.Close() })
			tt.check(t, w)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	result := &models.RunResult{
		StartTime:       start,
		EndTime:         start.Add(90 * time.Second),
		TotalCount:      5,
		ResolvedCount:   1,
		SkippedCount:    1,
		FailedCount:     1,
		CanceledCount:   2,
		SkipsByStage:    map[string]int{"asset_anchor": 1},
		ErrorsByType:    map[string]int{"session": 1},
		FailedAddresses: []string{"azuki"},
	}
	cfg := config.DefaultConfig()

	var buf bytes.Buffer
	printSummary(&buf, result, cfg, map[string]interface{}{
		"written_records":   int64(1),
		"validation_errors": map[string]int{},
	})

	out := buf.String()
	require.Contains(t, out, "Resolve complete")
	require.Regexp(t, `Canceled\s+│\s+2`, out)
	require.Contains(t, out, "asset_anchor=1")
	require.Contains(t, out, "session=1")
	require.Contains(t, out, "azuki")
	require.Contains(t, out, "1m30s")
	require.Contains(t, out, "BotRes/Valid.csv")
}

func TestFormatCounts(t *testing.T) {
	require.Equal(t, "a=1 b=2", formatCounts(map[string]int{"b": 2, "a": 1}))
	require.Equal(t, "", formatCounts(nil))
}
