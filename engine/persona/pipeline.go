// Package persona orchestrates the full generation flow: collect a user's
// public activity, build the evidence corpus, synthesize a draft, validate
// it against the evidence, link citations and render the result.
package persona

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/personalens/persona-mvp/engine/corpus"
	"github.com/personalens/persona-mvp/engine/domain"
)

// Stage is a pipeline run state.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageCollecting   Stage = "collecting"
	StageCorpusReady  Stage = "corpus_ready"
	StageSynthesizing Stage = "synthesizing"
	StageValidating   Stage = "validating"
	StageRepairing    Stage = "repairing"
	StageLinking      Stage = "linking_citations"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Collector fetches a user's public activity.
type Collector interface {
	Collect(ctx context.Context, username string) ([]domain.ActivityItem, error)
}

// Synthesizer produces a raw draft persona for an evidence corpus. A
// non-empty violations list requests a corrected draft.
type Synthesizer interface {
	Synthesize(ctx context.Context, c *corpus.Corpus, violations []string) ([]byte, error)
	Model() string
}

// Pipeline runs persona generation end to end. Safe for concurrent runs.
type Pipeline struct {
	collector Collector
	synth     Synthesizer
	opts      corpus.Options
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New assembles a pipeline. A nil metrics disables instrumentation and a
// nil logger falls back to slog.Default.
func New(col Collector, syn Synthesizer, opts corpus.Options, m *Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		collector: col,
		synth:     syn,
		opts:      opts,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("persona"),
	}
}

// Run generates a persona for the given (already normalized) username. It
// either returns a complete record or a typed error; never both. At most
// one repair round re-invokes the synthesizer with the validator's
// violation list.
func (p *Pipeline) Run(ctx context.Context, username string) (*domain.PersonaRecord, error) {
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "username", username)

	ctx, span := p.tracer.Start(ctx, "persona.run",
		trace.WithAttributes(attribute.String("persona.run_id", runID)))
	defer span.End()

	p.metrics.RunStarted()
	start := time.Now()

	rec, err := p.run(ctx, log, username)
	if err != nil {
		kind := domain.Kind(err)
		span.SetAttributes(attribute.String("persona.result", kind))
		p.metrics.RunFinished(kind)
		log.Error("persona run failed", "stage", StageFailed, "kind", kind, "err", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("persona.result", "ok"))
	p.metrics.RunFinished("ok")
	log.Info("persona run complete", "stage", StageDone, "elapsed", time.Since(start))
	return rec, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, username string) (*domain.PersonaRecord, error) {
	var items []domain.ActivityItem
	err := p.step(ctx, log, StageCollecting, func(ctx context.Context) error {
		var err error
		items, err = p.collector.Collect(ctx, username)
		return err
	})
	if err != nil {
		return nil, err
	}

	var c *corpus.Corpus
	err = p.step(ctx, log, StageCorpusReady, func(context.Context) error {
		var err error
		c, err = corpus.Build(items, p.opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("corpus built", "items", c.Len(), "collected", len(items))

	d, err := p.synthesize(ctx, log, c, nil)
	if err != nil {
		violations := domain.Violations(err)
		if len(violations) == 0 {
			return nil, err
		}
		log.Warn("draft rejected, repairing", "stage", StageRepairing, "violations", len(violations))
		if d, err = p.synthesize(ctx, log, c, violations); err != nil {
			return nil, err
		}
	}

	var rec *domain.PersonaRecord
	err = p.step(ctx, log, StageLinking, func(context.Context) error {
		var err error
		rec, err = Link(d, c, username, p.synth.Model())
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// synthesize runs one Synthesizing→Validating round and returns the
// validated draft or a validation error carrying the violation list.
func (p *Pipeline) synthesize(ctx context.Context, log *slog.Logger, c *corpus.Corpus, violations []string) (*domain.Draft, error) {
	var raw []byte
	err := p.step(ctx, log, StageSynthesizing, func(ctx context.Context) error {
		var err error
		raw, err = p.synth.Synthesize(ctx, c, violations)
		return err
	})
	if err != nil {
		return nil, err
	}

	var d *domain.Draft
	err = p.step(ctx, log, StageValidating, func(context.Context) error {
		var err error
		d, err = domain.ParseDraft(raw)
		if err != nil {
			return err
		}
		return domain.ValidateDraft(d, c)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// step runs one stage under its own span and records its latency.
func (p *Pipeline) step(ctx context.Context, log *slog.Logger, st Stage, f func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "persona."+string(st))
	defer span.End()

	start := time.Now()
	err := f(ctx)
	p.metrics.ObserveStage(string(st), time.Since(start))

	if err != nil {
		if !errors.Is(err, domain.ErrSchemaInvalid) {
			log.Warn("stage failed", "stage", st, "err", err)
		}
		return err
	}
	log.Debug("stage complete", "stage", st)
	return nil
}
