// Package collector retrieves a Reddit user's public posts and comments
// through the public JSON API, paginating under a shared rate budget with
// bounded retry and exponential backoff.
package collector

import "time"

// DefaultBaseURL is Reddit's public JSON endpoint.
const DefaultBaseURL = "https://www.reddit.com"

// Config controls collector behavior.
type Config struct {
	BaseURL      string
	UserAgent    string
	CommentLimit int
	PostLimit    int
	PageSize     int
	MaxAttempts  int
	InitialWait  time.Duration
	MaxWait      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = "persona-mvp/1.0 (user research persona generation)"
	}
	if c.CommentLimit <= 0 {
		c.CommentLimit = 100
	}
	if c.PostLimit <= 0 {
		c.PostLimit = 50
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialWait <= 0 {
		c.InitialWait = 5 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
	return c
}

// Reddit JSON API response envelope.

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Body       string  `json:"body"`
	Permalink  string  `json:"permalink"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}
