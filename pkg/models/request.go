package models

import "time"

// Request is a natural-language request submitted to the engine.
type Request struct {
	Text    string  `json:"text"`
	Options Options `json:"options"`
}

// Options tune how a request is routed.
type Options struct {
	ProviderOverride ProviderID   `json:"provider,omitempty"`
	TaskHint         TaskCategory `json:"task,omitempty"`
	UseCache         bool         `json:"use_cache"`
	Council          bool         `json:"council,omitempty"`
}

// Result is the final answer to a request.
type Result struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Provider ProviderID    `json:"provider"`
	Cached   bool          `json:"cached"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Category TaskCategory  `json:"category"`
	Degraded bool          `json:"degraded,omitempty"`
	Attempts []Attempt     `json:"attempts,omitempty"`
	Rounds   int           `json:"rounds,omitempty"`
}

// ElapsedMs returns Elapsed in whole milliseconds.
func (r Result) ElapsedMs() int64 { return r.Elapsed.Milliseconds() }

// Attempt records one connector call made while serving a request.
type Attempt struct {
	Provider ProviderID    `json:"provider"`
	Status   string        `json:"status"`
	Kind     FailureKind   `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// AttemptFrom summarizes an Outcome for provider.
func AttemptFrom(provider ProviderID, o Outcome, elapsed time.Duration) Attempt {
	a := Attempt{Provider: provider, Status: o.Status(), Elapsed: elapsed}
	if !o.OK() {
		a.Kind = o.Kind()
		a.Message = o.Message()
	}
	return a
}

// Chunk is a piece of streamed output. Provider identifies the backend that
// produced it so consumers can discard partial output when the fallback chain
// moves on.
type Chunk struct {
	Provider ProviderID `json:"provider"`
	Text     string     `json:"text"`
}
