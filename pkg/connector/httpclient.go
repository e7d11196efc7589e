package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/workyterm/workyterm/pkg/models"
)

type startedAtKey struct{}

// newClient returns a resty client that logs every call at debug level.
func newClient(name string, logger zerolog.Logger) *resty.Client {
	client := resty.New()
	client.SetHeader("User-Agent", "workyterm")
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startedAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		startedAt, _ := r.Request.Context().Value(startedAtKey{}).(time.Time)
		logger.Debug().
			Str("client", name).
			Str("method", r.Request.Method).
			Str("url", r.Request.URL).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startedAt)).
			Msg("HTTP client request")
		return nil
	})
	return client
}

// classifyStatus maps an HTTP error status to a failure.
func classifyStatus(status int, body string) error {
	msg := fmt.Sprintf("HTTP %d", status)
	if detail := errorDetail(body); detail != "" {
		msg += ": " + detail
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fail(models.FailurePermissionDenied, "%s", msg)
	case status == http.StatusNotFound:
		return fail(models.FailureNotFound, "%s", msg)
	case status == http.StatusTooManyRequests:
		return fail(models.FailureRateLimited, "%s", msg)
	}
	return fail(models.FailureNetwork, "%s", msg)
}

// errorDetail pulls a message out of the common error envelopes
// ({"error":"..."} and {"error":{"message":"..."}}), falling back to the raw
// body.
func errorDetail(body string) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && len(envelope.Error) > 0 {
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil {
			return excerpt(s, 200)
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "" {
			return excerpt(obj.Message, 200)
		}
	}
	return excerpt(body, 200)
}

// transportError marks an error returned before any HTTP status was seen.
func transportError(err error) error {
	return fail(models.FailureNetwork, "%v", err)
}

func endpointURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
