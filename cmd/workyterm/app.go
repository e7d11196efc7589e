package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/workyterm/workyterm/pkg/cache"
	"github.com/workyterm/workyterm/pkg/cache/memory"
	"github.com/workyterm/workyterm/pkg/cache/sqlite"
	"github.com/workyterm/workyterm/pkg/config"
	"github.com/workyterm/workyterm/pkg/connector"
	"github.com/workyterm/workyterm/pkg/council"
	"github.com/workyterm/workyterm/pkg/history"
	"github.com/workyterm/workyterm/pkg/logging"
	"github.com/workyterm/workyterm/pkg/models"
	"github.com/workyterm/workyterm/pkg/orchestrator"
	"github.com/workyterm/workyterm/pkg/registry"
	"github.com/workyterm/workyterm/pkg/router"
)

// app holds the wired engine for one command invocation.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *registry.Registry
	cache    cache.Store
	history  history.Recorder
	council  *council.Engine
	engine   *orchestrator.Orchestrator

	closers []io.Closer
}

type appOptions struct {
	// logLevel overrides the configured level when set.
	logLevel string
}

func defaultConfigHint() string {
	return config.DefaultPath()
}

// openApp loads configuration and wires every component.
func openApp(configPath string, opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, logCloser, err := logging.Open(level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &app{cfg: cfg, log: logger, closers: []io.Closer{logCloser}}

	a.registry, err = registry.New(cfg.Descriptors(),
		connector.NewFactory(logging.Component(logger, "connector")),
		registry.WithProbeTimeout(cfg.Timeouts.Probe),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init providers: %w", err)
	}

	if cfg.Cache.Enabled {
		a.cache = openCache(cfg, logger)
		if a.cache != nil {
			a.closers = append(a.closers, a.cache)
		}
	}

	rec, err := history.New(cfg.DBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.DBPath).Msg("run history unavailable")
	} else {
		a.history = rec
		a.closers = append(a.closers, rec)
	}

	if members := cfg.CouncilMembers(); len(members) >= 2 {
		scorer, err := council.ScorerByName(cfg.Council.Scorer)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init council: %w", err)
		}
		a.council, err = council.New(council.Config{
			Members:      members,
			Rounds:       cfg.Council.Rounds,
			Threshold:    cfg.Council.Threshold,
			Synthesizer:  models.ProviderID(cfg.Council.Synthesizer),
			RoundTimeout: cfg.Council.RoundTimeout,
			ExcerptLimit: cfg.Council.ExcerptLimit,
			Scorer:       scorer,
		}, a.registry, logging.Component(logger, "council"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init council: %w", err)
		}
	}

	ocfg := orchestrator.Config{
		Providers: a.registry,
		Planner:   router.New(a.registry, cfg.RouteTable()),
		Cache:     a.cache,
		History:   a.history,
		CacheTTL:  cfg.Cache.TTL,
		Logger:    logging.Component(logger, "orchestrator"),
	}
	if a.council != nil {
		ocfg.Council = a.council
	}
	a.engine = orchestrator.New(ocfg)
	return a, nil
}

// openCache opens the persistent cache, falling back to an in-memory cache
// for this session when the database cannot be used.
func openCache(cfg *config.Config, logger zerolog.Logger) cache.Store {
	store, err := sqlite.New(cfg.Cache.Path, cfg.Cache.TTL)
	if err == nil {
		return store
	}
	if !errors.Is(err, cache.ErrCacheIO) {
		logger.Warn().Err(err).Msg("cache unavailable")
		return nil
	}
	logger.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("persistent cache unavailable, using memory cache")
	mem, err := memory.New(cfg.Cache.MemorySize, cfg.Cache.TTL)
	if err != nil {
		logger.Warn().Err(err).Msg("memory cache unavailable")
		return nil
	}
	return mem
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
}
