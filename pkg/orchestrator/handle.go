package orchestrator

import (
	"context"

	"github.com/workyterm/workyterm/pkg/models"
)

const chunkBuffer = 64

// Handle tracks one submitted request.
type Handle struct {
	id     string
	chunks chan models.Chunk
	done   chan struct{}
	cancel context.CancelFunc

	result models.Result
	err    error
}

func newHandle(id string, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:     id,
		chunks: make(chan models.Chunk, chunkBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// ID returns the request id.
func (h *Handle) ID() string { return h.id }

// Chunks streams partial output. The channel is closed when the request
// finishes. Chunks from a provider that later failed may precede chunks from
// the next provider in the chain; consumers can tell them apart by Provider.
func (h *Handle) Chunks() <-chan models.Chunk { return h.chunks }

// Cancel aborts the request and every connector call it started.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the result is available. The request cannot finish
// while the chunk buffer is full, so callers selecting on Done must keep
// draining Chunks (or use Wait, which drains for them).
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the request finishes. Chunks not yet received are
// discarded.
func (h *Handle) Wait() (models.Result, error) {
	for range h.chunks {
	}
	<-h.done
	return h.result, h.err
}

func (h *Handle) emit(ctx context.Context, c models.Chunk) {
	if c.Text == "" {
		return
	}
	select {
	case h.chunks <- c:
	case <-ctx.Done():
	}
}
