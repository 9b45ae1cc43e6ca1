package provider

import (
	"errors"
	"strings"
	"time"
)

// ErrUnsupported is returned by an adapter for operations outside its
// capability set. The orchestrator treats it as "try next provider".
var ErrUnsupported = errors.New("operation not supported by provider")

// ErrNotFound marks an empty but well-formed lookup result (not a failure of
// the provider itself, but a fallback signal for lookup operations).
var ErrNotFound = errors.New("not found")

// Entry is the canonical representation of one title. Entries are never
// mutated after creation: merges build new entries (replace, don't mutate).
type Entry struct {
	ID          string   `json:"id"` // prefixed: "<provider>-<nativeID>"
	Title       string   `json:"title"`
	Type        string   `json:"type,omitempty"`   // TV, Movie, OVA, ONA, Special
	Status      string   `json:"status,omitempty"` // Airing, Completed, Upcoming
	Year        int      `json:"year,omitempty"`
	Image       string   `json:"image,omitempty"`
	Description string   `json:"description,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Source      string   `json:"source"` // provider name that produced this entry
}

// ResultSet is an ordered page of entries plus pagination metadata.
// Invariant after dedup: no two entries share (NormalizeTitle(Title), Type).
type ResultSet struct {
	Entries      []Entry `json:"entries"`
	CurrentPage  int     `json:"currentPage"`
	TotalPages   int     `json:"totalPages"`
	HasNextPage  bool    `json:"hasNextPage"`
	TotalResults int     `json:"totalResults"`
}

// Empty reports whether the set carries no entries (a fallback signal for
// list operations).
func (rs *ResultSet) Empty() bool { return rs == nil || len(rs.Entries) == 0 }

// RankedEntry pairs an entry with its position on a top-rated chart.
type RankedEntry struct {
	Rank  int   `json:"rank"`
	Entry Entry `json:"entry"`
}

// Episode is one watchable episode of a title.
type Episode struct {
	ID     string  `json:"id"` // prefixed like Entry.ID
	Number float64 `json:"number"`
	Title  string  `json:"title,omitempty"`
	Filler bool    `json:"filler,omitempty"`
}

// EpisodeServer names one upstream host serving an episode.
type EpisodeServer struct {
	Name     string `json:"name"`
	Category string `json:"category"` // sub | dub
}

// VideoSource is one playable stream variant.
type VideoSource struct {
	URL     string `json:"url"`
	Quality string `json:"quality,omitempty"` // provider label, e.g. "1080p", "HD-2"
	IsM3U8  bool   `json:"isM3U8"`
}

// Subtitle is one subtitle/caption track.
type Subtitle struct {
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

// StreamBundle is the short-lived result of resolving an episode to playable
// streams. Upstream tokens expire quickly, so bundles are cached for minutes,
// not hours (see ExpiresIn).
type StreamBundle struct {
	Sources   []VideoSource     `json:"sources"`
	Subtitles []Subtitle        `json:"subtitles,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"` // required upstream headers (Referer etc.)
	ExpiresIn time.Duration     `json:"-"`
}

// BrowseFilters are catalog browse criteria. Providers apply what they
// support server-side; the orchestrator re-validates locally.
type BrowseFilters struct {
	Query    string   `json:"query,omitempty"`
	Type     string   `json:"type,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Status   string   `json:"status,omitempty"`
	YearFrom int      `json:"yearFrom,omitempty"`
	YearTo   int      `json:"yearTo,omitempty"`
	Sort     string   `json:"sort,omitempty"`  // title | year
	Order    string   `json:"order,omitempty"` // asc | desc
	Page     int      `json:"page,omitempty"`
}

// NormalizeTitle lower-cases and collapses whitespace. It is the dedup
// grouping key across providers and is never shown to callers.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// MakeID builds the public prefixed ID "<provider>-<nativeID>".
func MakeID(providerName, nativeID string) string {
	return providerName + "-" + nativeID
}

// SplitID splits a prefixed ID into provider name and native ID. The native
// part may itself contain dashes; only the first dash is the separator.
func SplitID(id string) (providerName, nativeID string, ok bool) {
	i := strings.Index(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
