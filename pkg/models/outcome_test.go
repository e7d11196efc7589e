package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeVariants(t *testing.T) {
	ok := Succeeded("hello", 20*time.Millisecond)
	assert.True(t, ok.OK())
	assert.False(t, ok.IsTimeout())
	assert.Equal(t, "success", ok.Status())
	assert.Empty(t, ok.Kind())
	assert.NoError(t, ok.Err("ollama"))

	failed := Failed(FailureRateLimited, "HTTP 429")
	assert.False(t, failed.OK())
	assert.Equal(t, "failure", failed.Status())
	assert.Empty(t, failed.Text())

	timeout := TimedOut(2 * time.Second)
	assert.True(t, timeout.IsTimeout())
	assert.Equal(t, FailureTimeout, timeout.Kind())
	assert.Contains(t, timeout.Message(), "2s")
}

func TestOutcomeErr(t *testing.T) {
	err := Failed(FailureNotFound, "gemini: executable file not found").Err(ProviderGeminiCLI)
	require.Error(t, err)

	var ce *ConnectorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ProviderGeminiCLI, ce.Provider)
	assert.Equal(t, FailureNotFound, ce.Kind)
	assert.False(t, ce.IsTimeout())
	assert.Equal(t, "gemini-cli: not-found: gemini: executable file not found", err.Error())

	err = TimedOut(time.Second).Err(ProviderOllama)
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.IsTimeout())
}

func TestCacheEntryExpired(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := CacheEntry{CreatedAt: created, TTL: time.Hour}

	assert.False(t, e.Expired(created.Add(30*time.Minute)))
	assert.False(t, e.Expired(created.Add(time.Hour)))
	assert.True(t, e.Expired(created.Add(time.Hour+time.Second)))
}

func TestParseTaskCategory(t *testing.T) {
	tests := []struct {
		in   string
		want TaskCategory
		ok   bool
	}{
		{"research", TaskResearch, true},
		{"Analyze", TaskAnalysis, true},
		{" write ", TaskWriting, true},
		{"create", TaskCreative, true},
		{"editing", TaskEditing, true},
		{"general", TaskGeneral, true},
		{"dance", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseTaskCategory(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCacheStatsHitRate(t *testing.T) {
	assert.Zero(t, CacheStats{}.HitRate())
	assert.InDelta(t, 0.75, CacheStats{Hits: 3, Misses: 1}.HitRate(), 1e-9)
}
