// Package corpus reduces raw activity items into a bounded, indexed
// evidence corpus for the synthesizer. Selection and truncation are
// deterministic: the same input always yields the same corpus.
package corpus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/personalens/persona-mvp/engine/domain"
)

// Options controls corpus construction.
type Options struct {
	// MaxItems is the corpus size cap K.
	MaxItems int
	// MaxBodyRunes caps item body length; longer bodies are truncated at a
	// word boundary and suffixed with "...".
	MaxBodyRunes int
}

// DefaultOptions returns the standard corpus bounds.
func DefaultOptions() Options {
	return Options{MaxItems: 40, MaxBodyRunes: 300}
}

// Corpus is an immutable, indexed sequence of activity items. Indices are
// contiguous from 0 and stable for the lifetime of one pipeline run.
type Corpus struct {
	items []domain.ActivityItem
}

// Build selects up to opts.MaxItems items, unique by identifier, preferring
// more recent and higher-engagement items, strips entries without
// natural-language text, and truncates long bodies. Fails with
// ErrInsufficientEvidence when nothing survives.
func Build(items []domain.ActivityItem, opts Options) (*Corpus, error) {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultOptions().MaxItems
	}
	if opts.MaxBodyRunes <= 0 {
		opts.MaxBodyRunes = DefaultOptions().MaxBodyRunes
	}

	kept := make([]domain.ActivityItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		if !citable(it.Body) {
			continue
		}
		it.Body = truncate(it.Body, opts.MaxBodyRunes)
		kept = append(kept, it)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("build corpus: %w", domain.ErrInsufficientEvidence)
	}

	rank(kept)
	if len(kept) > opts.MaxItems {
		kept = kept[:opts.MaxItems]
	}
	return &Corpus{items: kept}, nil
}

// Item resolves a corpus index.
func (c *Corpus) Item(i int) (domain.ActivityItem, bool) {
	if i < 0 || i >= len(c.items) {
		return domain.ActivityItem{}, false
	}
	return c.items[i], true
}

// Len returns the corpus size.
func (c *Corpus) Len() int { return len(c.items) }

// Items returns the indexed sequence. Callers must not mutate it.
func (c *Corpus) Items() []domain.ActivityItem { return c.items }

// rank orders items by combined recency and engagement: each item gets the
// sum of its position in the newest-first ordering and its position in the
// highest-score-first ordering, lowest sum first. Ties break by creation
// time then ID so the order is total and deterministic.
func rank(items []domain.ActivityItem) {
	byRecency := positions(items, func(a, b domain.ActivityItem) bool {
		if !a.CreatedUTC.Equal(b.CreatedUTC) {
			return a.CreatedUTC.After(b.CreatedUTC)
		}
		return a.ID < b.ID
	})
	byScore := positions(items, func(a, b domain.ActivityItem) bool {
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID < b.ID
	})

	sort.SliceStable(items, func(i, j int) bool {
		si := byRecency[items[i].ID] + byScore[items[i].ID]
		sj := byRecency[items[j].ID] + byScore[items[j].ID]
		if si != sj {
			return si < sj
		}
		if !items[i].CreatedUTC.Equal(items[j].CreatedUTC) {
			return items[i].CreatedUTC.After(items[j].CreatedUTC)
		}
		return items[i].ID < items[j].ID
	})
}

// positions returns each item's rank under the given ordering, keyed by ID.
func positions(items []domain.ActivityItem, less func(a, b domain.ActivityItem) bool) map[string]int {
	sorted := make([]domain.ActivityItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	pos := make(map[string]int, len(sorted))
	for i, it := range sorted {
		pos[it.ID] = i
	}
	return pos
}

// citable reports whether a body carries natural-language text worth
// quoting. Bare links consume context budget without citation value.
func citable(body string) bool {
	s := strings.TrimSpace(body)
	if s == "" {
		return false
	}
	if (strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")) && !strings.ContainsAny(s, " \n\t") {
		return false
	}
	return true
}

// truncate cuts a body to at most max runes at a word boundary, appending
// "..." when anything was dropped.
func truncate(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	cut := string(runes[:max])
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n\t") + "..."
}
