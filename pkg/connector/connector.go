// Package connector invokes a single provider once. Each provider kind has
// its own variant (Exec, Ollama, OpenAI, Anthropic); callers only see the
// Connector interface and a models.Outcome.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/workyterm/workyterm/pkg/models"
)

// DefaultTimeout bounds a call when neither the params nor the descriptor
// set one.
const DefaultTimeout = 2 * time.Minute

// Params are the per-call settings. Zero fields fall back to the
// descriptor; a zero Timeout uses the descriptor's timeout, then
// DefaultTimeout.
type Params struct {
	Model    string
	TaskHint models.TaskCategory
	Timeout  time.Duration
}

// ChunkFunc receives incremental output as it arrives. It may be nil.
type ChunkFunc func(text string)

// Connector performs one provider call. Invoke never retries; it returns
// exactly one Outcome and releases every resource it started before
// returning.
type Connector interface {
	ID() models.ProviderID
	Invoke(ctx context.Context, prompt string, p Params, onChunk ChunkFunc) models.Outcome
}

// failure is returned by variant bodies to carry a classified error.
type failure struct {
	kind models.FailureKind
	msg  string
}

func (f *failure) Error() string { return fmt.Sprintf("%s: %s", f.kind, f.msg) }

func fail(kind models.FailureKind, format string, args ...any) error {
	return &failure{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// invoke wraps a variant body with validation, the call deadline and
// outcome classification.
func invoke(ctx context.Context, desc models.ProviderDescriptor, prompt string, p Params, body func(ctx context.Context, model string) (string, error)) models.Outcome {
	if strings.TrimSpace(prompt) == "" {
		return models.Failed(models.FailureInvalidInput, "empty prompt")
	}
	if err := ctx.Err(); err != nil {
		return models.Failed(models.FailureCancelled, err.Error())
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = desc.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	model := p.Model
	if model == "" {
		model = desc.Model
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, err := body(callCtx, model)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return models.Failed(models.FailureCancelled, ctx.Err().Error())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return models.TimedOut(elapsed)
	}
	if err != nil {
		var f *failure
		if errors.As(err, &f) {
			return models.Failed(f.kind, f.msg)
		}
		return models.Failed(models.FailureNetwork, err.Error())
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Failed(models.FailureMalformedResponse, "empty response")
	}
	return models.Succeeded(text, elapsed)
}

// excerpt shortens s to at most n runes for error messages.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
