// Package searchprov defines the web-search collaborator interface and a
// Brave Search backed implementation.
package searchprov

import "context"

// Result is one web search hit: the page URL, its title, and a text
// excerpt of its content.
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Provider performs a web search. count is the requested number of
// results; implementations may return fewer.
type Provider interface {
	Search(ctx context.Context, query string, count int) ([]Result, error)
}
