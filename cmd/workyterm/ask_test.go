package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/workyterm/workyterm/pkg/models"
	"github.com/workyterm/workyterm/pkg/orchestrator"
)

func TestFooter(t *testing.T) {
	res := models.Result{
		Provider: models.ProviderCouncil,
		Category: models.TaskWriting,
		Cached:   true,
		Rounds:   2,
		Degraded: true,
		Elapsed:  1500 * time.Millisecond,
	}
	assert.Equal(t, "council | writing | cached | 2 rounds | degraded | 1500ms", footer(res))

	res = models.Result{Provider: "ollama", Category: models.TaskGeneral, Elapsed: 20 * time.Millisecond}
	assert.Equal(t, "ollama | general | 20ms", footer(res))
}

func TestExplain(t *testing.T) {
	assert.EqualError(t, explain(fmt.Errorf("serve: %w", context.Canceled)), "cancelled")
	assert.Contains(t, explain(orchestrator.ErrCouncilUnavailable).Error(), "council.members")
	assert.ErrorIs(t, explain(orchestrator.ErrCouncilUnavailable), orchestrator.ErrCouncilUnavailable)

	all := &orchestrator.AllProvidersError{}
	assert.Contains(t, explain(all).Error(), "workyterm providers")

	other := errors.New("boom")
	assert.Equal(t, other, explain(other))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"$OPENAI_API_KEY", "$OPENAI_API_KEY"},
		{"short", "****"},
		{"sk-abcdefghijklmnop", "sk-a****mnop"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskSecret(tt.in), tt.in)
	}
}

func TestJoinSorted(t *testing.T) {
	assert.Equal(t, "-", joinSorted(nil))
	assert.Equal(t, "editing,research", joinSorted([]string{"research", "editing"}))
}
