package registry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workyterm/workyterm/pkg/connector"
	"github.com/workyterm/workyterm/pkg/models"
)

type stubConnector struct{ id models.ProviderID }

func (s stubConnector) ID() models.ProviderID { return s.id }
func (s stubConnector) Invoke(context.Context, string, connector.Params, connector.ChunkFunc) models.Outcome {
	return models.Succeeded("ok", time.Millisecond)
}

func stubFactory(d models.ProviderDescriptor) (connector.Connector, error) {
	return stubConnector{id: d.ID}, nil
}

func descs() []models.ProviderDescriptor {
	return []models.ProviderDescriptor{
		{ID: "gemini-cli", Kind: models.KindLocalExecutable, Enabled: true, Command: "gemini"},
		{ID: "openai", Kind: models.KindRemoteAPI, Enabled: false, Endpoint: "https://api.openai.com/v1"},
		{ID: "ollama", Kind: models.KindLocalEndpoint, Enabled: true, Endpoint: "http://localhost:11434"},
	}
}

func TestListAndEnabledKeepOrder(t *testing.T) {
	r, err := New(descs(), stubFactory)
	require.NoError(t, err)

	var all []models.ProviderID
	for _, d := range r.List() {
		all = append(all, d.ID)
	}
	assert.Equal(t, []models.ProviderID{"gemini-cli", "openai", "ollama"}, all)

	var enabled []models.ProviderID
	for _, d := range r.Enabled() {
		enabled = append(enabled, d.ID)
	}
	assert.Equal(t, []models.ProviderID{"gemini-cli", "ollama"}, enabled)
}

func TestDuplicateIDRejected(t *testing.T) {
	d := descs()
	d = append(d, d[0])
	_, err := New(d, stubFactory)
	require.Error(t, err)
}

func TestFactoryErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(descs(), func(models.ProviderDescriptor) (connector.Connector, error) { return nil, boom })
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestResolve(t *testing.T) {
	r, err := New(descs(), stubFactory)
	require.NoError(t, err)

	c, err := r.Resolve("ollama")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOllama, c.ID())

	_, err = r.Resolve("openai")
	assert.True(t, errors.Is(err, ErrUnknownProvider), "disabled provider must not resolve")

	_, err = r.Resolve("nope")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Contains(t, err.Error(), "nope")
}

func TestProbeExecutable(t *testing.T) {
	r, err := New(descs(), stubFactory)
	require.NoError(t, err)

	r.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	assert.True(t, r.Probe(context.Background(), "gemini-cli"))

	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.False(t, r.Probe(context.Background(), "gemini-cli"))
}

func TestProbeEndpoint(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	defer up.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	downAddr := ln.Addr().String()
	ln.Close()

	r, err := New([]models.ProviderDescriptor{
		{ID: "up", Kind: models.KindLocalEndpoint, Enabled: true, Endpoint: up.URL},
		{ID: "down", Kind: models.KindLocalEndpoint, Enabled: true, Endpoint: "http://" + downAddr},
		{ID: "off", Kind: models.KindLocalEndpoint, Enabled: false, Endpoint: up.URL},
	}, stubFactory, WithProbeTimeout(500*time.Millisecond))
	require.NoError(t, err)

	got := r.ProbeAll(context.Background())
	assert.Equal(t, map[models.ProviderID]bool{"up": true, "down": false}, got)
	assert.False(t, r.Probe(context.Background(), "off"))
	assert.False(t, r.Probe(context.Background(), "missing"))
}

func TestHostPort(t *testing.T) {
	tests := map[string]string{
		"http://localhost:11434":    "localhost:11434",
		"https://api.openai.com/v1": "api.openai.com:443",
		"http://example.com/ollama": "example.com:80",
	}
	for in, want := range tests {
		got, err := hostPort(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := hostPort("not a url")
	assert.Error(t, err)
}
