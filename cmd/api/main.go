// Package main implements the persona API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/personalens/persona-mvp/engine/collector"
	"github.com/personalens/persona-mvp/engine/corpus"
	"github.com/personalens/persona-mvp/engine/domain"
	"github.com/personalens/persona-mvp/engine/persona"
	"github.com/personalens/persona-mvp/engine/synth"
	"github.com/personalens/persona-mvp/pkg/gemini"
	"github.com/personalens/persona-mvp/pkg/metrics"
	"github.com/personalens/persona-mvp/pkg/mid"
	"github.com/personalens/persona-mvp/pkg/natsutil"
	"github.com/personalens/persona-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	Model       string
	UserAgent   string
	NATSURL     string
	NATSSubject string
	CORSOrigin  string
	RunTimeout  time.Duration
	RunsPerMin  float64
}

func loadConfig() Config {
	timeout, err := time.ParseDuration(envOr("RUN_TIMEOUT", "5m"))
	if err != nil {
		timeout = 5 * time.Minute
	}
	runsPerMin, err := strconv.ParseFloat(envOr("RUNS_PER_MINUTE", "2"), 64)
	if err != nil || runsPerMin <= 0 {
		runsPerMin = 2
	}
	return Config{
		Port:        envOr("PORT", "8080"),
		Model:       envOr("PERSONA_MODEL", synth.DefaultOptions().Model),
		UserAgent:   envOr("REDDIT_USER_AGENT", ""),
		NATSURL:     envOr("NATS_URL", ""),
		NATSSubject: envOr("NATS_SUBJECT", "persona.results"),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		RunTimeout:  timeout,
		RunsPerMin:  runsPerMin,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	gen, err := gemini.New(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	defer gen.Close()

	// Concurrent runs share one Reddit rate-limit state.
	col := collector.New(
		collector.Config{UserAgent: cfg.UserAgent},
		collector.NewRateLimitState(0),
		logger,
	)

	synthOpts := synth.DefaultOptions()
	synthOpts.Model = cfg.Model

	registry := metrics.New()
	pipe := persona.New(
		col,
		synth.New(gen, synthOpts, logger),
		corpus.DefaultOptions(),
		persona.NewMetrics(registry),
		logger,
	)

	var publish func(context.Context, *domain.PersonaRecord)
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		publish = func(ctx context.Context, rec *domain.PersonaRecord) {
			if err := natsutil.Publish(ctx, nc, cfg.NATSSubject, rec); err != nil {
				logger.Warn("nats publish failed", "subject", cfg.NATSSubject, "err", err)
			}
		}
	}

	limiter := resilience.NewLimiter(resilience.LimiterOpts{
		Rate:  cfg.RunsPerMin / 60,
		Burst: 2,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", registry.Handler())
	mux.HandleFunc("POST /v1/persona", handlePersona(pipe, limiter, publish, cfg.RunTimeout, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.RequestID(),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("persona-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// personaRunner is the part of the pipeline the handler needs.
type personaRunner interface {
	Run(ctx context.Context, username string) (*domain.PersonaRecord, error)
}

// PersonaRequest is the JSON body for POST /v1/persona.
type PersonaRequest struct {
	Username string `json:"username"`
}

func handlePersona(pipe personaRunner, limiter *resilience.Limiter, publish func(context.Context, *domain.PersonaRecord), timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		var req PersonaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		username, err := collector.NormalizeUsername(req.Username)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		rec, err := pipe.Run(ctx, username)
		if err != nil {
			logger.Error("persona run failed", "username", username, "kind", domain.Kind(err), "err", err)
			writeError(w, statusFor(err), domain.Kind(err))
			return
		}

		if publish != nil {
			publish(r.Context(), rec)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInsufficientEvidence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, domain.ErrService),
		errors.Is(err, domain.ErrSchemaInvalid),
		errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
