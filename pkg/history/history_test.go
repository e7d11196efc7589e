package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workyterm/workyterm/pkg/models"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	h, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := newTestRecorder(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, models.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			Provider:  "ollama",
			Category:  models.TaskResearch,
			Status:    "success",
			Elapsed:   time.Duration(i+1) * 100 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := h.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-2", runs[2].ID)
	assert.Equal(t, 500*time.Millisecond, runs[0].Elapsed)
	assert.Equal(t, models.TaskResearch, runs[0].Category)
	assert.True(t, runs[0].CreatedAt.Equal(base.Add(4*time.Minute)))
}

func TestSummary(t *testing.T) {
	h := newTestRecorder(t)
	ctx := context.Background()
	now := time.Now()

	records := []models.RunRecord{
		{ID: "1", Provider: "claude-cli", Status: "success", Elapsed: 100 * time.Millisecond},
		{ID: "2", Provider: "claude-cli", Status: "success", Cached: true, Elapsed: 300 * time.Millisecond},
		{ID: "3", Provider: "ollama", Status: "error", Error: "all providers unavailable", Elapsed: 50 * time.Millisecond},
		{ID: "4", Provider: "council", Council: true, Status: "success", Elapsed: time.Second, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, r := range records {
		require.NoError(t, h.Record(ctx, r))
	}

	rows, err := h.Summary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, models.ProviderClaudeCLI, rows[0].Provider)
	assert.EqualValues(t, 2, rows[0].Runs)
	assert.EqualValues(t, 1, rows[0].Cached)
	assert.EqualValues(t, 0, rows[0].Failed)
	assert.Equal(t, 200*time.Millisecond, rows[0].AvgElapsed)

	assert.Equal(t, models.ProviderOllama, rows[1].Provider)
	assert.EqualValues(t, 1, rows[1].Failed)

	all, err := h.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecentEmpty(t *testing.T) {
	h := newTestRecorder(t)
	runs, err := h.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
