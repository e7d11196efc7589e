// Package orchestrator accepts requests and drives them through routing, the
// response cache and either a provider fallback chain or a council session.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/cache"
	"github.com/workyterm/workyterm/pkg/connector"
	"github.com/workyterm/workyterm/pkg/council"
	"github.com/workyterm/workyterm/pkg/history"
	"github.com/workyterm/workyterm/pkg/metrics"
	"github.com/workyterm/workyterm/pkg/models"
	"github.com/workyterm/workyterm/pkg/router"
)

// Providers resolves provider ids to connectors and descriptors.
type Providers interface {
	Resolve(id models.ProviderID) (connector.Connector, error)
	Descriptor(id models.ProviderID) (models.ProviderDescriptor, bool)
}

// Planner orders the providers to try for a category.
type Planner interface {
	Plan(cat models.TaskCategory, override models.ProviderID) ([]models.ProviderID, error)
}

// Deliberator runs council sessions.
type Deliberator interface {
	Members() []models.ProviderID
	Run(ctx context.Context, prompt string, p connector.Params, onChunk func(models.Chunk)) (*council.Verdict, error)
}

// Config wires the orchestrator's collaborators. Cache, Council and History
// are optional.
type Config struct {
	Providers Providers
	Planner   Planner
	Council   Deliberator
	Cache     cache.Store
	History   history.Recorder
	CacheTTL  time.Duration
	Logger    zerolog.Logger
}

// Orchestrator serves requests. It is safe for concurrent use; each
// submitted request runs on its own goroutine.
type Orchestrator struct {
	providers Providers
	planner   Planner
	council   Deliberator
	cache     cache.Store
	history   history.Recorder
	ttl       time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Orchestrator{
		providers: cfg.Providers,
		planner:   cfg.Planner,
		council:   cfg.Council,
		cache:     cfg.Cache,
		history:   cfg.History,
		ttl:       ttl,
		log:       cfg.Logger,
		now:       time.Now,
	}
}

// Submit starts serving text and returns immediately.
func (o *Orchestrator) Submit(ctx context.Context, text string, opts models.Options) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(uuid.NewString(), cancel)

	go func() {
		defer close(h.done)
		defer close(h.chunks)
		defer cancel()
		h.result, h.err = o.serve(ctx, h, text, opts)
	}()
	return h
}

// Ask serves text and blocks until the result is ready.
func (o *Orchestrator) Ask(ctx context.Context, text string, opts models.Options) (models.Result, error) {
	return o.Submit(ctx, text, opts).Wait()
}

// request is the state of one served request.
type request struct {
	id       string
	text     string
	opts     models.Options
	category models.TaskCategory
	start    time.Time
	// cacheOff is set after a cache I/O error so the request neither reads
	// nor writes the cache again.
	cacheOff bool
}

func (o *Orchestrator) serve(ctx context.Context, h *Handle, text string, opts models.Options) (models.Result, error) {
	req := &request{id: h.id, text: strings.TrimSpace(text), opts: opts, start: o.now()}
	log := o.log.With().Str("request_id", req.id).Logger()

	if req.text == "" {
		return models.Result{ID: req.id}, ErrEmptyRequest
	}

	req.category = opts.TaskHint
	if req.category == "" {
		req.category = router.Classify(req.text)
	}
	log.Debug().Str("category", string(req.category)).Bool("council", opts.Council).Msg("request accepted")

	var (
		res models.Result
		err error
	)
	if opts.Council {
		res, err = o.deliberate(ctx, h, req)
	} else {
		res, err = o.chain(ctx, h, req)
	}
	res.ID = req.id
	res.Category = req.category
	res.Elapsed = o.now().Sub(req.start)

	o.record(ctx, req, res, err)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", res.Elapsed).Msg("request failed")
		return res, err
	}
	log.Info().
		Str("provider", string(res.Provider)).
		Bool("cached", res.Cached).
		Dur("elapsed", res.Elapsed).
		Msg("request served")
	return res, nil
}

// chain tries each planned provider in order and stops at the first success.
func (o *Orchestrator) chain(ctx context.Context, h *Handle, req *request) (models.Result, error) {
	plan, err := o.planner.Plan(req.category, req.opts.ProviderOverride)
	if err != nil {
		return models.Result{}, err
	}

	if req.opts.UseCache {
		for _, id := range plan {
			if entry, ok := o.lookup(ctx, req, o.providerKey(id, req)); ok {
				h.emit(ctx, models.Chunk{Provider: entry.ProviderID, Text: entry.Response})
				return models.Result{Text: entry.Response, Provider: entry.ProviderID, Cached: true}, nil
			}
		}
	}

	prompt := router.TaskPrompt(req.category, req.text)
	params := connector.Params{TaskHint: req.category}
	var attempts []models.Attempt

	for _, id := range plan {
		if err := ctx.Err(); err != nil {
			return models.Result{Attempts: attempts}, err
		}
		conn, err := o.providers.Resolve(id)
		if err != nil {
			attempts = append(attempts, models.Attempt{
				Provider: id, Status: "failure", Kind: models.FailureNotFound, Message: err.Error(),
			})
			continue
		}

		var streamed atomic.Bool
		start := o.now()
		out := conn.Invoke(ctx, prompt, params, func(text string) {
			streamed.Store(true)
			h.emit(ctx, models.Chunk{Provider: id, Text: text})
		})
		elapsed := o.now().Sub(start)
		attempts = append(attempts, models.AttemptFrom(id, out, elapsed))
		metrics.RecordCall(string(id), out.Status(), elapsed)

		if !out.OK() {
			if err := ctx.Err(); err != nil {
				return models.Result{Attempts: attempts}, err
			}
			o.log.Warn().
				Str("request_id", req.id).
				Str("provider", string(id)).
				Str("kind", string(out.Kind())).
				Str("error", out.Message()).
				Msg("provider failed, trying next")
			continue
		}

		if !streamed.Load() {
			h.emit(ctx, models.Chunk{Provider: id, Text: out.Text()})
		}
		o.store(ctx, req, o.providerKey(id, req), id, out.Text())
		return models.Result{Text: out.Text(), Provider: id, Attempts: attempts}, nil
	}

	return models.Result{Attempts: attempts}, &AllProvidersError{Attempts: attempts}
}

// deliberate serves the request through the council.
func (o *Orchestrator) deliberate(ctx context.Context, h *Handle, req *request) (models.Result, error) {
	if o.council == nil {
		return models.Result{}, ErrCouncilUnavailable
	}
	key := o.councilKey(req)

	if req.opts.UseCache {
		if entry, ok := o.lookup(ctx, req, key); ok {
			h.emit(ctx, models.Chunk{Provider: models.ProviderCouncil, Text: entry.Response})
			return models.Result{Text: entry.Response, Provider: models.ProviderCouncil, Cached: true}, nil
		}
	}

	params := connector.Params{TaskHint: req.category}
	var streamed atomic.Bool
	v, err := o.council.Run(ctx, req.text, params, func(c models.Chunk) {
		streamed.Store(true)
		h.emit(ctx, c)
	})
	if err != nil {
		var de *council.DeliberationError
		if errors.As(err, &de) {
			for _, f := range de.Failures {
				metrics.RecordCall(string(f.Provider), statusOf(f), 0)
			}
		}
		return models.Result{Provider: models.ProviderCouncil}, err
	}
	for _, a := range v.Attempts {
		metrics.RecordCall(string(a.Provider), a.Status, a.Elapsed)
	}
	metrics.CouncilRounds.Observe(float64(len(v.Rounds)))

	switch {
	case !streamed.Load():
		h.emit(ctx, models.Chunk{Provider: models.ProviderCouncil, Text: v.Text})
	case !v.Synthesized:
		// The synthesizer streamed partial output and then failed.
		h.emit(ctx, models.Chunk{Provider: v.Producer, Text: v.Text})
	}
	if v.Degraded {
		o.log.Warn().Str("request_id", req.id).Str("reason", v.Reason).Msg("council result degraded")
	} else {
		o.store(ctx, req, key, models.ProviderCouncil, v.Text)
	}
	return models.Result{
		Text:     v.Text,
		Provider: models.ProviderCouncil,
		Degraded: v.Degraded,
		Attempts: v.Attempts,
		Rounds:   len(v.Rounds),
	}, nil
}

func statusOf(ce *models.ConnectorError) string {
	if ce.IsTimeout() {
		return "timeout"
	}
	return "failure"
}

func (o *Orchestrator) providerKey(id models.ProviderID, req *request) models.CacheKey {
	var model string
	if d, ok := o.providers.Descriptor(id); ok {
		model = d.Model
	}
	return cache.Key(id, req.text, model, string(req.category))
}

func (o *Orchestrator) councilKey(req *request) models.CacheKey {
	members := o.council.Members()
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = string(m)
	}
	return cache.Key(models.ProviderCouncil, req.text, strings.Join(ids, ","), string(req.category))
}

// lookup reads key from the cache. I/O errors count as a miss and switch
// caching off for the rest of the request.
func (o *Orchestrator) lookup(ctx context.Context, req *request, key models.CacheKey) (models.CacheEntry, bool) {
	if o.cache == nil || req.cacheOff {
		return models.CacheEntry{}, false
	}
	entry, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		req.cacheOff = true
		metrics.RecordCacheLookup("error")
		o.log.Warn().Err(err).Str("request_id", req.id).Msg("cache lookup failed, treating as miss")
		return models.CacheEntry{}, false
	}
	if !ok {
		metrics.RecordCacheLookup("miss")
		return models.CacheEntry{}, false
	}
	metrics.RecordCacheLookup("hit")
	return entry, true
}

// store writes the final text. Nothing is written once the request has been
// cancelled.
func (o *Orchestrator) store(ctx context.Context, req *request, key models.CacheKey, provider models.ProviderID, text string) {
	if o.cache == nil || req.cacheOff || ctx.Err() != nil {
		return
	}
	err := o.cache.Put(ctx, models.CacheEntry{
		Key:        key,
		ProviderID: provider,
		Response:   text,
		CreatedAt:  o.now(),
		TTL:        o.ttl,
	})
	if err != nil {
		o.log.Warn().Err(err).Str("request_id", req.id).Msg("cache write failed")
	}
}

func (o *Orchestrator) record(ctx context.Context, req *request, res models.Result, err error) {
	status := "success"
	var msg string
	switch {
	case errors.Is(err, context.Canceled):
		status, msg = "cancelled", err.Error()
	case err != nil:
		status, msg = "error", err.Error()
	}
	metrics.RecordRequest(status, res.Elapsed)

	if o.history == nil {
		return
	}
	provider := res.Provider
	if provider == "" && req.opts.Council {
		provider = models.ProviderCouncil
	}
	rec := models.RunRecord{
		ID:        req.id,
		Provider:  provider,
		Category:  req.category,
		Cached:    res.Cached,
		Council:   req.opts.Council,
		Status:    status,
		Elapsed:   res.Elapsed,
		Error:     msg,
		CreatedAt: req.start,
	}
	if err := o.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Warn().Err(err).Str("request_id", req.id).Msg("record run failed")
	}
}
