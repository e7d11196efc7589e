// Package council runs multi-round deliberation across several providers
// and synthesizes one answer from the survivors.
package council

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/workyterm/workyterm/pkg/connector"
	"github.com/workyterm/workyterm/pkg/models"
)

// ErrDeliberationFailed is returned when every member has dropped out.
var ErrDeliberationFailed = errors.New("deliberation failed")

// ErrInvalidConfig is wrapped by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid council config")

const (
	defaultExcerptLimit   = 500
	synthesisExcerptLimit = 800
)

// DeliberationError lists why each member dropped out.
type DeliberationError struct {
	Failures []*models.ConnectorError
}

func (e *DeliberationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%v: no council member survived (%s)", ErrDeliberationFailed, strings.Join(parts, "; "))
}

func (e *DeliberationError) Unwrap() error { return ErrDeliberationFailed }

// Resolver looks up connectors by provider id.
type Resolver interface {
	Resolve(id models.ProviderID) (connector.Connector, error)
}

// Config holds deliberation settings.
type Config struct {
	Members      []models.ProviderID
	Rounds       int
	Threshold    float64
	Synthesizer  models.ProviderID // empty: first surviving member
	RoundTimeout time.Duration     // zero: only per-call timeouts apply
	ExcerptLimit int
	Scorer       Scorer
}

// Verdict is the outcome of a deliberation session.
type Verdict struct {
	Text      string
	Producer  models.ProviderID
	Rounds    []models.DeliberationRound
	Survivors []models.ProviderID
	Agreement float64
	Degraded  bool
	Reason    string
	Attempts  []models.Attempt

	// Synthesized is set when Text is the synthesizer's output, which is
	// what onChunk received. Fallback answers were never streamed.
	Synthesized bool
}

// Engine runs deliberation sessions. It holds no per-session state and is
// safe for concurrent use.
type Engine struct {
	cfg      Config
	resolver Resolver
	log      zerolog.Logger
}

// New validates cfg and creates an Engine.
func New(cfg Config, resolver Resolver, logger zerolog.Logger) (*Engine, error) {
	if len(cfg.Members) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 members, got %d", ErrInvalidConfig, len(cfg.Members))
	}
	seen := make(map[models.ProviderID]bool, len(cfg.Members))
	for _, m := range cfg.Members {
		if seen[m] {
			return nil, fmt.Errorf("%w: member %s listed twice", ErrInvalidConfig, m)
		}
		seen[m] = true
	}
	if cfg.Rounds < 1 {
		return nil, fmt.Errorf("%w: rounds must be at least 1", ErrInvalidConfig)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %.2f outside [0,1]", ErrInvalidConfig, cfg.Threshold)
	}
	if cfg.ExcerptLimit <= 0 {
		cfg.ExcerptLimit = defaultExcerptLimit
	}
	if cfg.Scorer == nil {
		cfg.Scorer = Jaccard{}
	}
	return &Engine{cfg: cfg, resolver: resolver, log: logger}, nil
}

// Members returns the configured member ids.
func (e *Engine) Members() []models.ProviderID {
	return append([]models.ProviderID(nil), e.cfg.Members...)
}

// Run deliberates on prompt. onChunk, if set, receives the streamed
// synthesis output.
func (e *Engine) Run(ctx context.Context, prompt string, p connector.Params, onChunk func(models.Chunk)) (*Verdict, error) {
	s := &session{
		engine:  e,
		prompt:  prompt,
		params:  p,
		conns:   make(map[models.ProviderID]connector.Connector, len(e.cfg.Members)),
		answers: make(map[models.ProviderID]string, len(e.cfg.Members)),
	}
	for _, id := range e.cfg.Members {
		c, err := e.resolver.Resolve(id)
		if err != nil {
			s.drop(id, models.Failed(models.FailureNotFound, err.Error()), 0)
			continue
		}
		s.conns[id] = c
		s.survivors = append(s.survivors, id)
	}
	return s.run(ctx, onChunk)
}

// session is the state of one Run call.
type session struct {
	engine    *Engine
	prompt    string
	params    connector.Params
	conns     map[models.ProviderID]connector.Connector
	survivors []models.ProviderID
	answers   map[models.ProviderID]string
	rounds    []models.DeliberationRound
	attempts  []models.Attempt
	failures  []*models.ConnectorError
}

type memberResult struct {
	id      models.ProviderID
	outcome models.Outcome
	elapsed time.Duration
}

func (s *session) run(ctx context.Context, onChunk func(models.Chunk)) (*Verdict, error) {
	cfg := s.engine.cfg
	log := s.engine.log

	for index := 1; index <= cfg.Rounds; index++ {
		if len(s.survivors) == 0 {
			return nil, &DeliberationError{Failures: s.failures}
		}
		if err := s.round(ctx, index); err != nil {
			return nil, err
		}
		if len(s.survivors) == 0 {
			return nil, &DeliberationError{Failures: s.failures}
		}

		last := s.rounds[len(s.rounds)-1]
		log.Debug().Int("round", index).Int("survivors", len(s.survivors)).Float64("agreement", last.Agreement).Msg("council round complete")

		if len(s.survivors) < 2 {
			id := s.survivors[0]
			return s.verdict(s.answers[id], id, true, "single surviving member"), nil
		}
		if last.Agreement >= cfg.Threshold {
			break
		}
	}

	return s.synthesize(ctx, onChunk), nil
}

// round fans the round's prompts out to every survivor and joins them.
func (s *session) round(ctx context.Context, index int) error {
	cfg := s.engine.cfg
	roundCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.RoundTimeout > 0 {
		roundCtx, cancel = context.WithTimeout(ctx, cfg.RoundTimeout)
	}
	defer cancel()

	prompts := make(map[models.ProviderID]string, len(s.survivors))
	for _, id := range s.survivors {
		prompts[id] = s.memberPrompt(index, id)
	}

	results := make([]memberResult, len(s.survivors))
	var g errgroup.Group
	for i, id := range s.survivors {
		i, id := i, id
		conn := s.conns[id]
		g.Go(func() error {
			start := time.Now()
			out := conn.Invoke(roundCtx, prompts[id], s.params, nil)
			elapsed := time.Since(start)
			if !out.OK() && ctx.Err() == nil && errors.Is(roundCtx.Err(), context.DeadlineExceeded) {
				out = models.TimedOut(elapsed)
			}
			results[i] = memberResult{id: id, outcome: out, elapsed: elapsed}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	round := models.DeliberationRound{
		Index:   index,
		Answers: make(map[models.ProviderID]string, len(results)),
	}
	var survivors []models.ProviderID
	var texts []string
	for _, r := range results {
		if !r.outcome.OK() {
			s.drop(r.id, r.outcome, r.elapsed)
			continue
		}
		s.attempts = append(s.attempts, models.AttemptFrom(r.id, r.outcome, r.elapsed))
		survivors = append(survivors, r.id)
		texts = append(texts, r.outcome.Text())
		s.answers[r.id] = r.outcome.Text()
		round.Answers[r.id] = r.outcome.Text()
		if c, ok := parseConfidence(r.outcome.Text()); ok {
			if round.Confidence == nil {
				round.Confidence = make(map[models.ProviderID]float64)
			}
			round.Confidence[r.id] = c
		}
	}
	s.survivors = survivors
	if len(texts) > 0 {
		round.Agreement = cfg.Scorer.Score(texts)
		s.rounds = append(s.rounds, round)
	}
	return nil
}

func (s *session) drop(id models.ProviderID, out models.Outcome, elapsed time.Duration) {
	s.engine.log.Warn().Str("member", string(id)).Str("kind", string(out.Kind())).Str("error", out.Message()).Msg("council member dropped")
	s.attempts = append(s.attempts, models.AttemptFrom(id, out, elapsed))
	var ce *models.ConnectorError
	if errors.As(out.Err(id), &ce) {
		s.failures = append(s.failures, ce)
	}
	delete(s.answers, id)
}

func (s *session) memberPrompt(index int, self models.ProviderID) string {
	if index == 1 {
		return fmt.Sprintf("Task: %s\n\nPlease provide your response to this task.", s.prompt)
	}
	var others []string
	for _, id := range s.survivors {
		if id == self {
			continue
		}
		others = append(others, fmt.Sprintf("=== %s ===\n%s\n", id, truncate(s.answers[id], s.engine.cfg.ExcerptLimit)))
	}
	return fmt.Sprintf("Task: %s\n\n"+
		"Previous responses from other council members:\n%s\n\n"+
		"Please review the previous responses and provide your updated response. "+
		"Consider the strengths of each approach and aim for consensus.",
		s.prompt, strings.Join(others, "\n"))
}

func (s *session) synthesisPrompt() string {
	var parts []string
	for i, id := range s.survivors {
		parts = append(parts, fmt.Sprintf("Response %d:\n%s\n", i+1, truncate(s.answers[id], synthesisExcerptLimit)))
	}
	return fmt.Sprintf("You are synthesizing responses from multiple AI council members.\n\n"+
		"Original task: %s\n\n"+
		"Council responses:\n%s\n\n"+
		"Please synthesize these responses into a single, cohesive answer that:\n"+
		"1. Incorporates the best ideas from each response\n"+
		"2. Resolves any contradictions\n"+
		"3. Maintains clarity and usefulness\n\n"+
		"Provide only the synthesized response, without meta-commentary.",
		s.prompt, strings.Join(parts, "\n"))
}

func (s *session) synthesize(ctx context.Context, onChunk func(models.Chunk)) *Verdict {
	cfg := s.engine.cfg
	synth := cfg.Synthesizer
	if synth == "" {
		synth = s.survivors[0]
	}

	conn, ok := s.conns[synth]
	if !ok {
		c, err := s.engine.resolver.Resolve(synth)
		if err != nil {
			s.engine.log.Warn().Err(err).Msg("synthesizer unavailable")
			s.attempts = append(s.attempts, models.AttemptFrom(synth, models.Failed(models.FailureNotFound, err.Error()), 0))
			return s.longest("synthesizer unavailable")
		}
		conn = c
	}

	synthCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.RoundTimeout > 0 {
		synthCtx, cancel = context.WithTimeout(ctx, cfg.RoundTimeout)
	}
	defer cancel()

	var chunk connector.ChunkFunc
	if onChunk != nil {
		chunk = func(text string) { onChunk(models.Chunk{Provider: synth, Text: text}) }
	}
	start := time.Now()
	out := conn.Invoke(synthCtx, s.synthesisPrompt(), s.params, chunk)
	s.attempts = append(s.attempts, models.AttemptFrom(synth, out, time.Since(start)))
	if !out.OK() {
		s.engine.log.Warn().Str("synthesizer", string(synth)).Str("kind", string(out.Kind())).Str("error", out.Message()).Msg("synthesis failed")
		return s.longest("synthesis failed: " + out.Message())
	}
	v := s.verdict(out.Text(), synth, false, "")
	v.Synthesized = true
	return v
}

// longest falls back to the most detailed surviving answer.
func (s *session) longest(reason string) *Verdict {
	best := s.survivors[0]
	for _, id := range s.survivors[1:] {
		if len(s.answers[id]) > len(s.answers[best]) {
			best = id
		}
	}
	return s.verdict(s.answers[best], best, true, reason)
}

func (s *session) verdict(text string, producer models.ProviderID, degraded bool, reason string) *Verdict {
	v := &Verdict{
		Text:      text,
		Producer:  producer,
		Rounds:    s.rounds,
		Survivors: append([]models.ProviderID(nil), s.survivors...),
		Degraded:  degraded,
		Reason:    reason,
		Attempts:  s.attempts,
	}
	if n := len(s.rounds); n > 0 {
		v.Agreement = s.rounds[n-1].Agreement
	}
	return v
}

var confidencePattern = regexp.MustCompile(`(?im)^\s*confidence\s*:\s*([01](?:\.\d+)?)\s*$`)

// parseConfidence reads a self-reported "Confidence: 0.x" line.
func parseConfidence(answer string) (float64, bool) {
	m := confidencePattern.FindStringSubmatch(answer)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
