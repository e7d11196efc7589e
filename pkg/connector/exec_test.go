package connector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workyterm/workyterm/pkg/models"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func execDesc(command string, args ...string) models.ProviderDescriptor {
	return models.ProviderDescriptor{
		ID:      "test-cli",
		Kind:    models.KindLocalExecutable,
		Enabled: true,
		Command: command,
		Args:    args,
		Timeout: 5 * time.Second,
	}
}

func TestExecSuccessStreamsLines(t *testing.T) {
	script := writeScript(t, `echo "first: $2"; echo "second"`)
	c := NewExec(execDesc(script, "-p", "{prompt}"), zerolog.Nop())

	var mu sync.Mutex
	var chunks []string
	out := c.Invoke(context.Background(), "hello there", Params{}, func(s string) {
		mu.Lock()
		chunks = append(chunks, s)
		mu.Unlock()
	})

	require.True(t, out.OK(), out.Message())
	assert.Equal(t, "first: hello there\nsecond", out.Text())
	assert.Equal(t, []string{"first: hello there\n", "second\n"}, chunks)
	assert.Positive(t, out.Elapsed())
}

func TestExecAppendsPromptWithoutPlaceholder(t *testing.T) {
	script := writeScript(t, `echo "$@"`)
	c := NewExec(execDesc(script, "--model", "{model}"), zerolog.Nop())

	out := c.Invoke(context.Background(), "ping", Params{Model: "m1"}, nil)
	require.True(t, out.OK(), out.Message())
	assert.Equal(t, "--model m1 ping", out.Text())
}

func TestExecStdin(t *testing.T) {
	script := writeScript(t, `tr 'a-z' 'A-Z'`)
	desc := execDesc(script)
	desc.Stdin = true
	c := NewExec(desc, zerolog.Nop())

	out := c.Invoke(context.Background(), "shout", Params{}, nil)
	require.True(t, out.OK(), out.Message())
	assert.Equal(t, "SHOUT", out.Text())
}

func TestExecNotFound(t *testing.T) {
	c := NewExec(execDesc("workyterm-definitely-missing-tool"), zerolog.Nop())
	out := c.Invoke(context.Background(), "hi", Params{}, nil)
	require.False(t, out.OK())
	assert.Equal(t, models.FailureNotFound, out.Kind())
}

func TestExecPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores execute permission bits")
	}
	path := filepath.Join(t.TempDir(), "noexec.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))

	out := NewExec(execDesc(path), zerolog.Nop()).Invoke(context.Background(), "hi", Params{}, nil)
	require.False(t, out.OK())
	assert.Equal(t, models.FailurePermissionDenied, out.Kind())
}

func TestExecNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "quota exhausted" >&2; exit 3`)
	out := NewExec(execDesc(script), zerolog.Nop()).Invoke(context.Background(), "hi", Params{}, nil)

	require.False(t, out.OK())
	assert.Equal(t, models.FailureProcessExitNonzero, out.Kind())
	assert.Contains(t, out.Message(), "exit status 3")
	assert.Contains(t, out.Message(), "quota exhausted")
}

func TestExecEmptyOutputIsMalformed(t *testing.T) {
	script := writeScript(t, `exit 0`)
	out := NewExec(execDesc(script), zerolog.Nop()).Invoke(context.Background(), "hi", Params{}, nil)
	require.False(t, out.OK())
	assert.Equal(t, models.FailureMalformedResponse, out.Kind())
}

func TestExecTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5; echo late`)
	c := NewExec(execDesc(script), zerolog.Nop())

	start := time.Now()
	out := c.Invoke(context.Background(), "hi", Params{Timeout: 100 * time.Millisecond}, nil)
	assert.True(t, out.IsTimeout(), out.Status())
	assert.Less(t, time.Since(start), 4*time.Second, "subprocess must be torn down on timeout")
}

func TestExecCancelled(t *testing.T) {
	script := writeScript(t, `sleep 5; echo late`)
	c := NewExec(execDesc(script), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	out := c.Invoke(ctx, "hi", Params{}, nil)
	require.False(t, out.OK())
	assert.False(t, out.IsTimeout())
	assert.Equal(t, models.FailureCancelled, out.Kind())
}

func TestInvokeRejectsEmptyPrompt(t *testing.T) {
	called := false
	out := invoke(context.Background(), execDesc("x"), "  \n", Params{}, func(context.Context, string) (string, error) {
		called = true
		return "nope", nil
	})
	assert.False(t, called)
	assert.Equal(t, models.FailureInvalidInput, out.Kind())
}

func TestInvokeUsesDescriptorModel(t *testing.T) {
	desc := execDesc("x")
	desc.Model = "llama3.2"

	var got string
	out := invoke(context.Background(), desc, "hi", Params{}, func(_ context.Context, model string) (string, error) {
		got = model
		return "ok", nil
	})
	require.True(t, out.OK())
	assert.Equal(t, "llama3.2", got)

	invoke(context.Background(), desc, "hi", Params{Model: "override"}, func(_ context.Context, model string) (string, error) {
		got = model
		return "ok", nil
	})
	assert.Equal(t, "override", got)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("  short  ", 10))
	assert.Equal(t, "abc...", excerpt("abcdef", 3))
	assert.True(t, strings.HasPrefix(excerpt(strings.Repeat("é", 20), 5), "ééééé"))
}

func TestExecUsesDescriptorTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5; echo late`)
	desc := execDesc(script)
	desc.Timeout = 150 * time.Millisecond

	start := time.Now()
	out := NewExec(desc, zerolog.Nop()).Invoke(context.Background(), "hi", Params{}, nil)
	assert.True(t, out.IsTimeout(), out.Status())
	assert.Less(t, time.Since(start), 4*time.Second)
}
