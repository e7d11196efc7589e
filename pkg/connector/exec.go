package connector

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/models"
)

// Exec runs a local CLI tool (gemini, claude, codex) once per call.
//
// Args may contain {prompt} and {model} placeholders. Without a {prompt}
// placeholder the prompt is appended as the last argument, or written to
// stdin when the descriptor sets Stdin.
type Exec struct {
	desc models.ProviderDescriptor
	log  zerolog.Logger
}

// NewExec creates an Exec connector.
func NewExec(desc models.ProviderDescriptor, logger zerolog.Logger) *Exec {
	return &Exec{desc: desc, log: logger.With().Str("provider", string(desc.ID)).Logger()}
}

// ID implements Connector.
func (e *Exec) ID() models.ProviderID { return e.desc.ID }

// Invoke implements Connector.
func (e *Exec) Invoke(ctx context.Context, prompt string, p Params, onChunk ChunkFunc) models.Outcome {
	return invoke(ctx, e.desc, prompt, p, func(ctx context.Context, model string) (string, error) {
		return e.run(ctx, prompt, model, onChunk)
	})
}

func (e *Exec) args(prompt, model string) []string {
	args := make([]string, 0, len(e.desc.Args)+1)
	placed := false
	for _, a := range e.desc.Args {
		if strings.Contains(a, "{prompt}") {
			placed = true
		}
		a = strings.ReplaceAll(a, "{prompt}", prompt)
		a = strings.ReplaceAll(a, "{model}", model)
		args = append(args, a)
	}
	if !placed && !e.desc.Stdin {
		args = append(args, prompt)
	}
	return args
}

func (e *Exec) run(ctx context.Context, prompt, model string, onChunk ChunkFunc) (string, error) {
	cmd := exec.CommandContext(ctx, e.desc.Command, e.args(prompt, model)...)
	// Grandchildren may hold stdout open after the tool is killed.
	cmd.WaitDelay = time.Second
	if e.desc.Stdin {
		cmd.Stdin = strings.NewReader(prompt)
	}
	var stderr bytes.Buffer
	stdout := &lineWriter{onLine: onChunk}
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", classifyStart(e.desc.Command, err)
	}
	e.log.Debug().Int("pid", cmd.Process.Pid).Msg("started")

	err := cmd.Wait()
	stdout.flush()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := excerpt(stderr.String(), 300)
			if msg == "" {
				msg = "no output on stderr"
			}
			return "", fail(models.FailureProcessExitNonzero, "exit status %d: %s", exitErr.ExitCode(), msg)
		}
		return "", fail(models.FailureProcessExitNonzero, "%v", err)
	}
	return stdout.String(), nil
}

// lineWriter collects output and forwards each complete line.
type lineWriter struct {
	mu      sync.Mutex
	all     strings.Builder
	pending []byte
	onLine  ChunkFunc
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.all.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.pending[:i+1]))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(string(w.pending))
		w.pending = nil
	}
}

func (w *lineWriter) emit(line string) {
	if w.onLine != nil {
		w.onLine(line)
	}
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.all.String()
}

func classifyStart(command string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fail(models.FailureNotFound, "%s: %v", command, err)
	case errors.Is(err, fs.ErrPermission):
		return fail(models.FailurePermissionDenied, "%s: %v", command, err)
	}
	return fail(models.FailureProcessExitNonzero, "%s: %v", command, err)
}
