package persona

import (
	"strings"
	"testing"
	"time"

	"github.com/personalens/persona-mvp/engine/domain"
)

type fakeSource []domain.ActivityItem

func (f fakeSource) Item(i int) (domain.ActivityItem, bool) {
	if i < 0 || i >= len(f) {
		return domain.ActivityItem{}, false
	}
	return f[i], true
}

func (f fakeSource) Len() int { return len(f) }

func linkerDraft() *domain.Draft {
	return &domain.Draft{
		Age:      "25-34",
		Location: "Berlin",
		Traits:   []string{"curious"},
		Behaviours: []domain.Claim{
			{Statement: "Invests in their desk setup", Quote: "mechanical keyboards", Index: 0},
		},
		Goals: []domain.Claim{
			{Statement: "Wants a remote role", Quote: "work remotely", Index: 1},
		},
		Personality: "pragmatic",
		Motivations: "comfort",
		Quote:       "never looked back",
	}
}

func linkerSource() fakeSource {
	return fakeSource{
		{Body: "mechanical keyboards are great", Permalink: "https://www.reddit.com/r/mk/comments/a1/"},
		{Body: "I want to work remotely", Permalink: "https://www.reddit.com/r/jobs/comments/b2/"},
	}
}

func TestLinkResolvesPermalinks(t *testing.T) {
	rec, err := Link(linkerDraft(), linkerSource(), "keeb_fan", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	want := `Invests in their desk setup — "mechanical keyboards" (https://www.reddit.com/r/mk/comments/a1/)`
	if len(rec.Behaviours) != 1 || rec.Behaviours[0] != want {
		t.Errorf("Behaviours = %q\nwant %q", rec.Behaviours, want)
	}
	if len(rec.Goals) != 1 || !strings.HasSuffix(rec.Goals[0], "(https://www.reddit.com/r/jobs/comments/b2/)") {
		t.Errorf("Goals = %q", rec.Goals)
	}
	if rec.Frustrations == nil || len(rec.Frustrations) != 0 {
		t.Errorf("Frustrations = %#v, want empty non-nil", rec.Frustrations)
	}
	if rec.Username != "keeb_fan" || rec.Model != "gemini-2.5-flash" {
		t.Errorf("identity = %s/%s", rec.Username, rec.Model)
	}
	if rec.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestLinkKeepsQuotesVerbatim(t *testing.T) {
	d := linkerDraft()
	d.Behaviours[0].Quote = `calls it the "endgame" board`
	d.Quote = `my "endgame", for now`

	rec, err := Link(d, linkerSource(), "keeb_fan", "m")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	// Inner quote characters pass through untouched, no escaping.
	want := `Invests in their desk setup — "calls it the "endgame" board" (https://www.reddit.com/r/mk/comments/a1/)`
	if rec.Behaviours[0] != want {
		t.Errorf("Behaviours[0] = %q\nwant %q", rec.Behaviours[0], want)
	}
	if strings.Contains(rec.Behaviours[0], `\"`) {
		t.Error("citation contains escaped quotes")
	}

	out := Render(rec)
	if !strings.Contains(out, "QUOTE: \"my \"endgame\", for now\"\n") {
		t.Errorf("rendered quote escaped or missing:\n%s", out)
	}
}

func TestLinkUnresolvableIndexFails(t *testing.T) {
	d := linkerDraft()
	d.Goals[0].Index = 5

	_, err := Link(d, linkerSource(), "keeb_fan", "m")
	if err == nil {
		t.Fatal("expected error for out-of-corpus index")
	}
	if domain.Kind(err) != "internal" {
		t.Errorf("kind = %s, want internal", domain.Kind(err))
	}
	if !strings.Contains(err.Error(), "GOALS[0]") {
		t.Errorf("err = %v", err)
	}
}

func TestRenderLayout(t *testing.T) {
	rec := &domain.PersonaRecord{
		Username:     "keeb_fan",
		Age:          "25-34",
		Location:     "Berlin",
		Traits:       []string{"curious", "direct"},
		Behaviours:   []string{`Invests in their desk setup — "mechanical keyboards" (https://www.reddit.com/r/mk/comments/a1/)`},
		Frustrations: []string{},
		Goals:        []string{},
		Personality:  "pragmatic",
		Motivations:  "comfort",
		Quote:        "never looked back",
		GeneratedAt:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Model:        "gemini-2.5-flash",
	}

	out := Render(rec)
	for _, want := range []string{
		"Persona for u/keeb_fan\n",
		"Generated 2026-08-30 12:00 UTC by gemini-2.5-flash\n",
		"AGE: 25-34\n",
		"LOCATION: Berlin\n",
		"TRAITS:\n  curious\n  direct\n",
		"BEHAVIOURS:\n  Invests in their desk setup — \"mechanical keyboards\" (https://www.reddit.com/r/mk/comments/a1/)\n",
		"PERSONALITY: pragmatic\n",
		"MOTIVATIONS: comfort\n",
		"QUOTE: \"never looked back\"\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
}
