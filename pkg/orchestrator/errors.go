package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/workyterm/workyterm/pkg/models"
)

var (
	// ErrEmptyRequest is returned for blank request text.
	ErrEmptyRequest = errors.New("empty request")
	// ErrAllProvidersUnavailable is wrapped by AllProvidersError.
	ErrAllProvidersUnavailable = errors.New("all providers unavailable")
	// ErrCouncilUnavailable is returned when council mode is requested but
	// no council is configured.
	ErrCouncilUnavailable = errors.New("council not configured")
)

// AllProvidersError reports every attempt of an exhausted fallback chain.
type AllProvidersError struct {
	Attempts []models.Attempt
}

func (e *AllProvidersError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s: %s", a.Provider, a.Kind, a.Message))
	}
	return fmt.Sprintf("%v (%s)", ErrAllProvidersUnavailable, strings.Join(parts, "; "))
}

func (e *AllProvidersError) Unwrap() error { return ErrAllProvidersUnavailable }
