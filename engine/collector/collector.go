package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/personalens/persona-mvp/engine/domain"
	"github.com/personalens/persona-mvp/pkg/fn"
)

// Collector fetches a user's activity from Reddit's public JSON API.
type Collector struct {
	cfg    Config
	client *http.Client
	limits *RateLimitState
	logger *slog.Logger
}

// New creates a Collector. A nil limits creates a private RateLimitState;
// pass a shared one when multiple runs use the same credential set.
func New(cfg Config, limits *RateLimitState, logger *slog.Logger) *Collector {
	if limits == nil {
		limits = NewRateLimitState(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:    cfg.withDefaults(),
		client: &http.Client{Timeout: 30 * time.Second},
		limits: limits,
		logger: logger,
	}
}

// NormalizeUsername reduces a raw username or profile URL to a bare
// username: "u/spez", "/u/spez" and "https://www.reddit.com/user/spez/"
// all normalize to "spez".
func NormalizeUsername(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid profile URL %q", raw)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		s = ""
		for i, p := range parts {
			if (p == "user" || p == "u") && i+1 < len(parts) {
				s = parts[i+1]
				break
			}
		}
	}
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimPrefix(s, "u/")
	s = strings.TrimSuffix(s, "/")
	if s == "" || strings.ContainsAny(s, "/ \t") {
		return "", fmt.Errorf("invalid username %q", raw)
	}
	return s, nil
}

// Collect returns the user's deduplicated posts and comments, newest first
// per feed, up to the configured caps. The context deadline bounds the
// cumulative time spent across retries.
func (c *Collector) Collect(ctx context.Context, username string) ([]domain.ActivityItem, error) {
	var items []domain.ActivityItem
	seen := make(map[string]struct{})

	for _, feed := range []struct {
		path  string
		limit int
	}{
		{"comments", c.cfg.CommentLimit},
		{"submitted", c.cfg.PostLimit},
	} {
		if err := c.collectFeed(ctx, username, feed.path, feed.limit, seen, &items); err != nil {
			return nil, err
		}
	}

	c.logger.Info("collect done", "user", username, "items", len(items),
		"retries", c.limits.Snapshot().Retries)
	return items, nil
}

// collectFeed paginates one listing feed until the item cap or end of
// history. Items are deduplicated across pages by fullname, so a page
// re-fetch after backoff never duplicates output.
func (c *Collector) collectFeed(ctx context.Context, username, feed string, limit int, seen map[string]struct{}, items *[]domain.ActivityItem) error {
	after := ""
	count := 0

	for count < limit {
		endpoint := c.feedURL(username, feed, after)

		result := fn.Retry(ctx, fn.RetryOpts{
			MaxAttempts: c.cfg.MaxAttempts,
			InitialWait: c.cfg.InitialWait,
			MaxWait:     c.cfg.MaxWait,
			Jitter:      true,
			Retryable:   transient,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				total := c.limits.RecordRetry(wait)
				c.logger.Warn("collect retry", "feed", feed, "attempt", attempt,
					"total_retries", total, "wait", wait, "err", err)
			},
		}, func(ctx context.Context) fn.Result[*listingResponse] {
			return c.fetchPage(ctx, endpoint)
		})

		page, err := result.Unwrap()
		if err != nil {
			return c.classify(ctx, feed, err)
		}

		if len(page.Data.Children) == 0 {
			return nil
		}
		for _, child := range page.Data.Children {
			item, ok := itemFromChild(child)
			if !ok {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			*items = append(*items, item)
			count++
			if count >= limit {
				return nil
			}
		}
		if page.Data.After == "" {
			return nil
		}
		after = page.Data.After
	}
	return nil
}

func (c *Collector) feedURL(username, feed, after string) string {
	params := url.Values{
		"limit":    {fmt.Sprintf("%d", c.cfg.PageSize)},
		"raw_json": {"1"},
	}
	if after != "" {
		params.Set("after", after)
	}
	return fmt.Sprintf("%s/user/%s/%s.json?%s", c.cfg.BaseURL, url.PathEscape(username), feed, params.Encode())
}

// httpError carries a status code so the retry classifier can separate
// transient (429, 5xx) from terminal statuses.
type httpError struct {
	status int
	url    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d from %s", e.status, e.url)
}

// transient reports whether an error is worth another attempt.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.status == http.StatusTooManyRequests || he.status >= 500
	}
	// Transport-level failures are transient.
	return true
}

func (c *Collector) fetchPage(ctx context.Context, endpoint string) fn.Result[*listingResponse] {
	if err := c.limits.Wait(ctx); err != nil {
		return fn.Err[*listingResponse](err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fn.Err[*listingResponse](err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fn.Err[*listingResponse](fmt.Errorf("get %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	c.limits.Observe(resp.Header)

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		// Absent or suspended profiles surface as 404/403.
		return fn.Err[*listingResponse](fmt.Errorf("user listing %d: %w", resp.StatusCode, domain.ErrNotFound))
	case resp.StatusCode != http.StatusOK:
		return fn.Err[*listingResponse](&httpError{status: resp.StatusCode, url: endpoint})
	}

	var page listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return fn.Err[*listingResponse](fmt.Errorf("decode listing: %w", err))
	}
	return fn.Ok(&page)
}

// classify maps a final (post-retry) error onto the pipeline taxonomy.
func (c *Collector) classify(ctx context.Context, feed string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("collect %s: %w", feed, domain.ErrCancelled)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("collect %s: %w", feed, domain.ErrNotFound)
	}
	var he *httpError
	if errors.As(err, &he) && he.status == http.StatusTooManyRequests {
		return fmt.Errorf("collect %s: retry budget exhausted: %w", feed, domain.ErrRateLimited)
	}
	return fmt.Errorf("collect %s: %v: %w", feed, err, domain.ErrNetwork)
}

// itemFromChild converts a listing child into an ActivityItem. Removed,
// deleted and empty bodies are skipped.
func itemFromChild(child listingChild) (domain.ActivityItem, bool) {
	d := child.Data

	var kind domain.ItemKind
	var body string
	switch child.Kind {
	case "t1":
		kind = domain.KindComment
		body = d.Body
	case "t3":
		kind = domain.KindPost
		body = d.Title
		if d.SelfText != "" {
			body = d.Title + "\n\n" + d.SelfText
		}
	default:
		return domain.ActivityItem{}, false
	}

	body = strings.TrimSpace(body)
	if body == "" || body == "[removed]" || body == "[deleted]" {
		return domain.ActivityItem{}, false
	}

	id := d.Name
	if id == "" {
		id = child.Kind + "_" + d.ID
	}

	return domain.ActivityItem{
		ID:         id,
		Kind:       kind,
		Body:       body,
		Permalink:  "https://www.reddit.com" + d.Permalink,
		CreatedUTC: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Subreddit:  d.Subreddit,
		Score:      d.Score,
	}, true
}
