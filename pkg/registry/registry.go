// Package registry owns the set of configured providers and their
// connectors. A Registry is built once from a configuration snapshot and is
// read-only afterwards; reconfiguring means building a new one.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/workyterm/workyterm/pkg/connector"
	"github.com/workyterm/workyterm/pkg/models"
)

// ErrUnknownProvider is returned when an id is not configured or disabled.
var ErrUnknownProvider = errors.New("unknown or disabled provider")

// DefaultProbeTimeout bounds a single availability probe.
const DefaultProbeTimeout = 2 * time.Second

// Registry maps provider ids to descriptors and connectors.
type Registry struct {
	descs        []models.ProviderDescriptor
	index        map[models.ProviderID]int
	conns        map[models.ProviderID]connector.Connector
	probeTimeout time.Duration
	lookPath     func(string) (string, error)
	dial         func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithProbeTimeout sets the per-probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// New builds a Registry. Connectors are created for enabled providers only.
// Duplicate ids are rejected.
func New(descs []models.ProviderDescriptor, factory connector.Factory, opts ...Option) (*Registry, error) {
	dialer := &net.Dialer{}
	r := &Registry{
		descs:        make([]models.ProviderDescriptor, 0, len(descs)),
		index:        make(map[models.ProviderID]int, len(descs)),
		conns:        make(map[models.ProviderID]connector.Connector, len(descs)),
		probeTimeout: DefaultProbeTimeout,
		lookPath:     exec.LookPath,
		dial:         dialer.DialContext,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, d := range descs {
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", d.ID)
		}
		r.index[d.ID] = len(r.descs)
		r.descs = append(r.descs, d)
		if !d.Enabled {
			continue
		}
		c, err := factory(d)
		if err != nil {
			return nil, fmt.Errorf("build connector %s: %w", d.ID, err)
		}
		r.conns[d.ID] = c
	}
	return r, nil
}

// List returns every provider in configuration order.
func (r *Registry) List() []models.ProviderDescriptor {
	out := make([]models.ProviderDescriptor, len(r.descs))
	copy(out, r.descs)
	return out
}

// Enabled returns the enabled providers in configuration order.
func (r *Registry) Enabled() []models.ProviderDescriptor {
	var out []models.ProviderDescriptor
	for _, d := range r.descs {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Descriptor returns the descriptor for id.
func (r *Registry) Descriptor(id models.ProviderID) (models.ProviderDescriptor, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.ProviderDescriptor{}, false
	}
	return r.descs[i], true
}

// Resolve returns the connector for an enabled provider.
func (r *Registry) Resolve(id models.ProviderID) (connector.Connector, error) {
	c, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return c, nil
}

// Probe reports whether a provider looks reachable: executables must be on
// PATH, endpoints must accept a TCP connection. It is a cheap liveness hint
// for diagnostics and startup, not a per-request check.
func (r *Registry) Probe(ctx context.Context, id models.ProviderID) bool {
	d, ok := r.Descriptor(id)
	if !ok || !d.Enabled {
		return false
	}
	if d.Kind == models.KindLocalExecutable {
		_, err := r.lookPath(d.Command)
		return err == nil
	}

	addr, err := hostPort(d.Endpoint)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	conn, err := r.dial(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ProbeAll probes every enabled provider concurrently.
func (r *Registry) ProbeAll(ctx context.Context) map[models.ProviderID]bool {
	enabled := r.Enabled()
	out := make(map[models.ProviderID]bool, len(enabled))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range enabled {
		d := d
		g.Go(func() error {
			ok := r.Probe(gctx, d.ID)
			mu.Lock()
			out[d.ID] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func hostPort(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
