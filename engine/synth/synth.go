// Package synth drives the generative reasoning service: it renders the
// evidence corpus into a single structured request, invokes the service
// under a timeout with bounded retry, and emits the raw draft object for
// validation.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/personalens/persona-mvp/engine/corpus"
	"github.com/personalens/persona-mvp/engine/domain"
	"github.com/personalens/persona-mvp/pkg/fn"
	"github.com/personalens/persona-mvp/pkg/resilience"
)

// ErrQuotaExhausted marks a service rejection that retrying cannot resolve
// (daily quota, billing). Implementations of Generator return it so the
// retry loop fails fast instead of burning the backoff budget.
var ErrQuotaExhausted = errors.New("reasoning quota exhausted")

// Generator is the reasoning service client. Implemented by pkg/gemini.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is one reasoning round trip.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// Options configures the synthesizer.
type Options struct {
	Model          string
	FallbackModels []string
	MaxAttempts    int
	Timeout        time.Duration
	InitialWait    time.Duration
	MaxWait        time.Duration
	Temperature    float32
	MaxTokens      int32
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Model:       "gemini-2.5-flash",
		MaxAttempts: 3,
		Timeout:     90 * time.Second,
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// Synthesizer invokes the reasoning service for an evidence corpus.
type Synthesizer struct {
	gen     Generator
	opts    Options
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// New creates a Synthesizer.
func New(gen Generator, opts Options, logger *slog.Logger) *Synthesizer {
	if opts.Model == "" {
		opts.Model = DefaultOptions().Model
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultOptions().MaxTokens
	}
	if opts.InitialWait <= 0 {
		opts.InitialWait = DefaultOptions().InitialWait
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultOptions().MaxWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		gen:     gen,
		opts:    opts,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
}

// Model returns the primary model requests are sent with.
func (s *Synthesizer) Model() string { return s.opts.Model }

// Synthesize produces a raw draft persona for the corpus. The input to the
// service is identical across service-error retries; a syntactically
// malformed response triggers exactly one corrective re-invocation. A
// non-empty violations list (from a failed validation round) is appended to
// the instructions.
func (s *Synthesizer) Synthesize(ctx context.Context, c *corpus.Corpus, violations []string) ([]byte, error) {
	prompt := buildPrompt(c, violations)

	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	cleaned := stripFences(raw)
	if wellFormed(cleaned) {
		return []byte(cleaned), nil
	}

	s.logger.Warn("synth output malformed, corrective re-invoke", "len", len(raw))
	raw, err = s.generate(ctx, prompt+fmt.Sprintf(malformedNote, jsonProblem(cleaned)))
	if err != nil {
		return nil, err
	}
	cleaned = stripFences(raw)
	if !wellFormed(cleaned) {
		return nil, fmt.Errorf("synthesize: output still malformed after corrective attempt: %w", domain.ErrService)
	}
	return []byte(cleaned), nil
}

// wellFormed reports whether s is a single JSON object at the top level.
// Arrays and bare scalars are valid JSON but never a usable draft, so they
// take the corrective path too.
func wellFormed(s string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil && obj != nil
}

// generate runs the retry loop, stepping through fallback models when a
// model keeps failing, each attempt under its own timeout.
func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	models := append([]string{s.opts.Model}, s.opts.FallbackModels...)
	attempt := 0

	result := fn.Retry(ctx, fn.RetryOpts{
		MaxAttempts: s.opts.MaxAttempts,
		InitialWait: s.opts.InitialWait,
		MaxWait:     s.opts.MaxWait,
		Jitter:      true,
		Retryable:   retryable,
		OnRetry: func(n int, err error, wait time.Duration) {
			s.logger.Warn("synth retry", "attempt", n, "wait", wait, "err", err)
		},
	}, func(ctx context.Context) fn.Result[string] {
		model := models[attempt]
		if attempt < len(models)-1 {
			attempt++
		}

		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		var out string
		err := s.breaker.Call(callCtx, func(ctx context.Context) error {
			var gerr error
			out, gerr = s.gen.Generate(ctx, Request{
				System:      systemPrompt,
				Prompt:      prompt,
				Model:       model,
				Temperature: s.opts.Temperature,
				MaxTokens:   s.opts.MaxTokens,
			})
			return gerr
		})
		return fn.FromPair(out, err)
	})

	out, err := result.Unwrap()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("synthesize: %w", domain.ErrCancelled)
		}
		return "", fmt.Errorf("synthesize: %v: %w", err, domain.ErrService)
	}
	return out, nil
}

// retryable treats everything as transient except cancellation and quota
// rejection; an attempt timeout is a service timeout, not a cancellation.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, ErrQuotaExhausted)
}

// stripFences removes a markdown code fence the model wrapped around the
// object despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.IndexByte(s, '\n'); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// jsonProblem gives the model a short description of what was wrong.
func jsonProblem(s string) string {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil {
		return "the top-level value is not a JSON object"
	}
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}
