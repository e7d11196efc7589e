package models

import (
	"fmt"
	"time"
)

// FailureKind classifies why a connector call did not succeed.
type FailureKind string

const (
	FailureNotFound           FailureKind = "not-found"
	FailurePermissionDenied   FailureKind = "permission-denied"
	FailureNetwork            FailureKind = "network-error"
	FailureMalformedResponse  FailureKind = "malformed-response"
	FailureRateLimited        FailureKind = "rate-limited"
	FailureProcessExitNonzero FailureKind = "process-exit-nonzero"
	FailureCancelled          FailureKind = "cancelled"
	FailureInvalidInput       FailureKind = "invalid-input"

	// FailureTimeout is only reported through ConnectorError and Attempt.
	FailureTimeout FailureKind = "timeout"
)

type outcomeStatus uint8

const (
	statusSuccess outcomeStatus = iota + 1
	statusFailure
	statusTimeout
)

// Outcome is the result of a single connector invocation. It is exactly one
// of success, failure or timeout; the zero value is not a valid Outcome.
type Outcome struct {
	status  outcomeStatus
	text    string
	elapsed time.Duration
	kind    FailureKind
	message string
}

// Succeeded builds a successful Outcome.
func Succeeded(text string, elapsed time.Duration) Outcome {
	return Outcome{status: statusSuccess, text: text, elapsed: elapsed}
}

// Failed builds a failed Outcome.
func Failed(kind FailureKind, message string) Outcome {
	return Outcome{status: statusFailure, kind: kind, message: message}
}

// TimedOut builds an Outcome for a call that exceeded its deadline.
func TimedOut(elapsed time.Duration) Outcome {
	return Outcome{status: statusTimeout, elapsed: elapsed, kind: FailureTimeout}
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.status == statusSuccess }

// IsTimeout reports whether the call hit its deadline.
func (o Outcome) IsTimeout() bool { return o.status == statusTimeout }

// Text is the answer of a successful call.
func (o Outcome) Text() string { return o.text }

// Elapsed is the wall time of a successful or timed out call.
func (o Outcome) Elapsed() time.Duration { return o.elapsed }

// Kind is the failure kind; empty on success.
func (o Outcome) Kind() FailureKind { return o.kind }

// Message is the human-readable failure detail.
func (o Outcome) Message() string {
	if o.status == statusTimeout && o.message == "" {
		return fmt.Sprintf("no response within %s", o.elapsed.Round(time.Millisecond))
	}
	return o.message
}

// Status returns "success", "failure" or "timeout".
func (o Outcome) Status() string {
	switch o.status {
	case statusSuccess:
		return "success"
	case statusTimeout:
		return "timeout"
	case statusFailure:
		return "failure"
	}
	return "invalid"
}

// Err converts a non-successful Outcome into a *ConnectorError. It returns nil
// on success.
func (o Outcome) Err(provider ProviderID) error {
	if o.OK() {
		return nil
	}
	return &ConnectorError{Provider: provider, Kind: o.kind, Message: o.Message()}
}

// ConnectorError describes one failed connector call.
type ConnectorError struct {
	Provider ProviderID
	Kind     FailureKind
	Message  string
}

func (e *ConnectorError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// IsTimeout reports whether the call timed out.
func (e *ConnectorError) IsTimeout() bool { return e.Kind == FailureTimeout }
