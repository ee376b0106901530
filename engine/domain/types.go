// Package domain defines the core persona pipeline types: activity items
// collected from Reddit, the draft persona emitted by the reasoning service,
// and the final PersonaRecord with verified citations. It also owns the
// error taxonomy and the draft validation/repair rules.
package domain

import "time"

// ItemKind distinguishes posts from comments.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

// ActivityItem is one public post or comment authored by the target user.
// Immutable once fetched.
type ActivityItem struct {
	ID         string    `json:"id"`
	Kind       ItemKind  `json:"kind"`
	Body       string    `json:"body"`
	Permalink  string    `json:"permalink"`
	CreatedUTC time.Time `json:"created_utc"`
	Subreddit  string    `json:"subreddit"`
	Score      int       `json:"score"`
}

// Claim is one behaviour/frustration/goal entry in a draft persona: a
// statement backed by a verbatim quote referencing a corpus index.
type Claim struct {
	Statement string `json:"statement"`
	Quote     string `json:"quote"`
	Index     int    `json:"index"`
}

// Draft is the decoded but not yet validated output of the synthesizer.
type Draft struct {
	Age          string   `json:"AGE"`
	Location     string   `json:"LOCATION"`
	Traits       []string `json:"TRAITS"`
	Behaviours   []Claim  `json:"BEHAVIOURS"`
	Frustrations []Claim  `json:"FRUSTRATIONS"`
	Goals        []Claim  `json:"GOALS"`
	Personality  string   `json:"PERSONALITY"`
	Motivations  string   `json:"MOTIVATIONS"`
	Quote        string   `json:"QUOTE"`
}

// Citation is a verified (quote, permalink) pair. The quote is an exact
// substring of the body of the item the permalink points at.
type Citation struct {
	Quote     string `json:"quote"`
	Permalink string `json:"permalink"`
}

// PersonaRecord is the final structured persona. The BEHAVIOURS,
// FRUSTRATIONS and GOALS entries are fully linked citation strings of the
// form `statement — "quote" (permalink)`.
type PersonaRecord struct {
	Username     string    `json:"username"`
	Age          string    `json:"AGE"`
	Location     string    `json:"LOCATION"`
	Traits       []string  `json:"TRAITS"`
	Behaviours   []string  `json:"BEHAVIOURS"`
	Frustrations []string  `json:"FRUSTRATIONS"`
	Goals        []string  `json:"GOALS"`
	Personality  string    `json:"PERSONALITY"`
	Motivations  string    `json:"MOTIVATIONS"`
	Quote        string    `json:"QUOTE"`
	GeneratedAt  time.Time `json:"generated_at"`
	Model        string    `json:"model,omitempty"`
}

// EvidenceSource resolves corpus indices back to activity items. Implemented
// by corpus.Corpus; the validator and citation linker only need lookups.
type EvidenceSource interface {
	Item(i int) (ActivityItem, bool)
	Len() int
}
