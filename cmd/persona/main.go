// Command persona generates a persona profile for a single Reddit user from
// their public posts and comments, writing a rendered text file and
// optionally publishing the JSON record to NATS.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/personalens/persona-mvp/engine/collector"
	"github.com/personalens/persona-mvp/engine/corpus"
	"github.com/personalens/persona-mvp/engine/persona"
	"github.com/personalens/persona-mvp/engine/synth"
	"github.com/personalens/persona-mvp/pkg/gemini"
	"github.com/personalens/persona-mvp/pkg/natsutil"
)

func main() {
	user := flag.String("user", "", "Reddit username or profile URL (required)")
	outDir := flag.String("out", "results", "directory for rendered persona files")
	natsURL := flag.String("nats", "", "NATS URL (if set, the JSON record is published)")
	subject := flag.String("subject", "persona.results", "NATS subject to publish to")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run deadline")
	model := flag.String("model", synth.DefaultOptions().Model, "primary Gemini model")
	flag.Parse()

	if *user == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	username, err := collector.NormalizeUsername(*user)
	if err != nil {
		log.Fatalf("invalid -user: %v", err)
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY is required")
	}
	gen, err := gemini.New(ctx, apiKey)
	if err != nil {
		log.Fatalf("gemini: %v", err)
	}
	defer gen.Close()

	colCfg := collector.Config{
		UserAgent: os.Getenv("REDDIT_USER_AGENT"),
	}
	col := collector.New(colCfg, collector.NewRateLimitState(0), nil)

	synthOpts := synth.DefaultOptions()
	synthOpts.Model = *model
	pipe := persona.New(col, synth.New(gen, synthOpts, nil), corpus.DefaultOptions(), nil, nil)

	rec, err := pipe.Run(ctx, username)
	if err != nil {
		log.Fatalf("persona run for u/%s: %v", username, err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create %s: %v", *outDir, err)
	}
	path := filepath.Join(*outDir, username+".txt")
	if err := os.WriteFile(path, []byte(persona.Render(rec)), 0o644); err != nil {
		log.Fatalf("write %s: %v", path, err)
	}
	log.Printf("wrote %s", path)

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer nc.Close()
		if err := natsutil.Publish(ctx, nc, *subject, rec); err != nil {
			log.Printf("nats publish error: %v", err)
		} else {
			log.Printf("published record to %s", *subject)
		}
	}
}
