package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/personalens/persona-mvp/engine/domain"
	"github.com/personalens/persona-mvp/pkg/resilience"
)

type fakeRunner struct {
	rec *domain.PersonaRecord
	err error
}

func (f *fakeRunner) Run(context.Context, string) (*domain.PersonaRecord, error) {
	return f.rec, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func openLimiter() *resilience.Limiter {
	return resilience.NewLimiter(resilience.LimiterOpts{Rate: 100, Burst: 100})
}

func postPersona(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/persona", strings.NewReader(body))
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlePersonaSuccess(t *testing.T) {
	runner := &fakeRunner{rec: &domain.PersonaRecord{
		Username: "keeb_fan",
		Age:      "25-34",
		Quote:    "never looked back",
	}}
	h := handlePersona(runner, openLimiter(), nil, time.Minute, testLogger())

	rec := postPersona(h, `{"username": "u/keeb_fan"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got domain.PersonaRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Username != "keeb_fan" || got.Age != "25-34" {
		t.Errorf("record = %+v", got)
	}
}

func TestHandlePersonaErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrInsufficientEvidence, http.StatusUnprocessableEntity},
		{domain.ErrCancelled, http.StatusRequestTimeout},
		{domain.ErrService, http.StatusBadGateway},
		{domain.ErrSchemaInvalid, http.StatusBadGateway},
		{domain.ErrNetwork, http.StatusBadGateway},
		{fmt.Errorf("link BEHAVIOURS[0]: index 9 not in corpus"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		runner := &fakeRunner{err: fmt.Errorf("run: %w", tc.err)}
		h := handlePersona(runner, openLimiter(), nil, time.Minute, testLogger())

		rec := postPersona(h, `{"username": "someone"}`)
		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Errorf("%v: error body = %s", tc.err, rec.Body)
		}
	}
}

func TestHandlePersonaBadRequests(t *testing.T) {
	runner := &fakeRunner{rec: &domain.PersonaRecord{}}
	h := handlePersona(runner, openLimiter(), nil, time.Minute, testLogger())

	if rec := postPersona(h, `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rec.Code)
	}
	if rec := postPersona(h, `{"username": ""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty username: status = %d", rec.Code)
	}
}

func TestHandlePersonaRateLimited(t *testing.T) {
	runner := &fakeRunner{rec: &domain.PersonaRecord{Username: "x"}}
	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.001, Burst: 1})
	h := handlePersona(runner, limiter, nil, time.Minute, testLogger())

	if rec := postPersona(h, `{"username": "x"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}
	if rec := postPersona(h, `{"username": "x"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", rec.Code)
	}
}

func TestHandlePersonaPublishesRecord(t *testing.T) {
	runner := &fakeRunner{rec: &domain.PersonaRecord{Username: "keeb_fan"}}
	var published *domain.PersonaRecord
	publish := func(_ context.Context, rec *domain.PersonaRecord) { published = rec }
	h := handlePersona(runner, openLimiter(), publish, time.Minute, testLogger())

	if rec := postPersona(h, `{"username": "keeb_fan"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if published == nil || published.Username != "keeb_fan" {
		t.Errorf("published = %+v", published)
	}
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" || cfg.RunTimeout != 5*time.Minute || cfg.RunsPerMin != 2 {
		t.Fatalf("defaults = %+v", cfg)
	}
}
