package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"anistream/pkg/logger"
)

// restProvider adapts a JSON catalog API to the Provider interface. Each
// configured upstream gets its own instance; all of them share the wire
// format below, which mirrors the common scraper-API shape (search page,
// title lookup, episode list, server list, sources).
type restProvider struct {
	name    string
	baseURL string
	apiKey  string
	caps    Capability
	client  *http.Client
}

var _ Provider = (*restProvider)(nil)

// RESTConfig configures one REST-backed provider.
type RESTConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewREST builds a REST-backed provider. Timeout defaults to 30s; the
// reliability wrapper applies the per-call budget on top via context.
func NewREST(cfg RESTConfig) Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &restProvider{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		caps:    AllCapabilities,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (p *restProvider) Name() string             { return p.name }
func (p *restProvider) Capabilities() Capability { return p.caps }

// Wire types. Upstream APIs use camelCase JSON; unknown fields are ignored.
type wireEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Year        int      `json:"year"`
	Image       string   `json:"image"`
	Description string   `json:"description"`
	Genres      []string `json:"genres"`
}

type wirePage struct {
	Results      []wireEntry `json:"results"`
	CurrentPage  int         `json:"currentPage"`
	TotalPages   int         `json:"totalPages"`
	HasNextPage  bool        `json:"hasNextPage"`
	TotalResults int         `json:"totalResults"`
}

type wireEpisode struct {
	ID     string  `json:"id"`
	Number float64 `json:"number"`
	Title  string  `json:"title"`
	Filler bool    `json:"isFiller"`
}

type wireServer struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type wireSources struct {
	Sources []struct {
		URL     string `json:"url"`
		Quality string `json:"quality"`
		IsM3U8  bool   `json:"isM3U8"`
	} `json:"sources"`
	Subtitles []struct {
		URL  string `json:"url"`
		Lang string `json:"lang"`
	} `json:"subtitles"`
	Headers map[string]string `json:"headers"`
}

type wireRanked struct {
	Rank  int       `json:"rank"`
	Entry wireEntry `json:"entry"`
}

// get fetches path with query values and decodes the JSON body into out.
// Non-2xx statuses become errors carrying the upstream status code.
func (p *restProvider) get(ctx context.Context, path string, q url.Values, out any) error {
	u := p.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: upstream HTTP %d", p.name, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return nil
}

func (p *restProvider) entry(w wireEntry) Entry {
	return Entry{
		ID:          MakeID(p.name, w.ID),
		Title:       w.Title,
		Type:        w.Type,
		Status:      w.Status,
		Year:        w.Year,
		Image:       w.Image,
		Description: w.Description,
		Genres:      w.Genres,
		Source:      p.name,
	}
}

func (p *restProvider) page(w wirePage) *ResultSet {
	rs := &ResultSet{
		CurrentPage:  w.CurrentPage,
		TotalPages:   w.TotalPages,
		HasNextPage:  w.HasNextPage,
		TotalResults: w.TotalResults,
	}
	for _, e := range w.Results {
		rs.Entries = append(rs.Entries, p.entry(e))
	}
	return rs
}

func (p *restProvider) Search(ctx context.Context, query string, page int, filters *BrowseFilters) (*ResultSet, error) {
	q := url.Values{"q": {query}, "page": {strconv.Itoa(page)}}
	if filters != nil {
		if filters.Type != "" {
			q.Set("type", filters.Type)
		}
		if filters.Status != "" {
			q.Set("status", filters.Status)
		}
		if len(filters.Genres) > 0 {
			q.Set("genres", strings.Join(filters.Genres, ","))
		}
		if filters.YearFrom > 0 {
			q.Set("yearFrom", strconv.Itoa(filters.YearFrom))
		}
		if filters.YearTo > 0 {
			q.Set("yearTo", strconv.Itoa(filters.YearTo))
		}
		if filters.Sort != "" {
			q.Set("sort", filters.Sort)
		}
		if filters.Order != "" {
			q.Set("order", filters.Order)
		}
	}
	var w wirePage
	if err := p.get(ctx, "/search", q, &w); err != nil {
		return nil, err
	}
	return p.page(w), nil
}

func (p *restProvider) GetByID(ctx context.Context, id string) (*Entry, error) {
	var w wireEntry
	if err := p.get(ctx, "/anime/"+url.PathEscape(id), nil, &w); err != nil {
		return nil, err
	}
	if w.ID == "" {
		return nil, ErrNotFound
	}
	e := p.entry(w)
	return &e, nil
}

func (p *restProvider) ListEpisodes(ctx context.Context, animeID string) ([]Episode, error) {
	var ws []wireEpisode
	if err := p.get(ctx, "/anime/"+url.PathEscape(animeID)+"/episodes", nil, &ws); err != nil {
		return nil, err
	}
	out := make([]Episode, 0, len(ws))
	for _, w := range ws {
		out = append(out, Episode{
			ID:     MakeID(p.name, w.ID),
			Number: w.Number,
			Title:  w.Title,
			Filler: w.Filler,
		})
	}
	return out, nil
}

func (p *restProvider) ListServers(ctx context.Context, episodeID string) ([]EpisodeServer, error) {
	var ws []wireServer
	if err := p.get(ctx, "/episode/"+url.PathEscape(episodeID)+"/servers", nil, &ws); err != nil {
		return nil, err
	}
	out := make([]EpisodeServer, 0, len(ws))
	for _, w := range ws {
		out = append(out, EpisodeServer{Name: w.Name, Category: w.Category})
	}
	return out, nil
}

func (p *restProvider) GetStreamingLinks(ctx context.Context, episodeID, server, category string) (*StreamBundle, error) {
	q := url.Values{}
	if server != "" {
		q.Set("server", server)
	}
	if category != "" {
		q.Set("category", category)
	}
	var w wireSources
	if err := p.get(ctx, "/episode/"+url.PathEscape(episodeID)+"/sources", q, &w); err != nil {
		return nil, err
	}
	if len(w.Sources) == 0 {
		return nil, ErrNotFound
	}
	b := &StreamBundle{Headers: w.Headers, ExpiresIn: 2 * time.Minute}
	for _, s := range w.Sources {
		b.Sources = append(b.Sources, VideoSource{URL: s.URL, Quality: s.Quality, IsM3U8: s.IsM3U8})
	}
	b.Sources = RankSources(b.Sources)
	for _, s := range w.Subtitles {
		b.Subtitles = append(b.Subtitles, Subtitle{URL: s.URL, Lang: s.Lang})
	}
	return b, nil
}

func (p *restProvider) listEntries(ctx context.Context, path string, page int) ([]Entry, error) {
	var w wirePage
	if err := p.get(ctx, path, url.Values{"page": {strconv.Itoa(page)}}, &w); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(w.Results))
	for _, e := range w.Results {
		out = append(out, p.entry(e))
	}
	return out, nil
}

func (p *restProvider) ListTrending(ctx context.Context, page int) ([]Entry, error) {
	return p.listEntries(ctx, "/trending", page)
}

func (p *restProvider) ListLatest(ctx context.Context, page int) ([]Entry, error) {
	return p.listEntries(ctx, "/latest", page)
}

func (p *restProvider) ListTopRated(ctx context.Context, page, limit int) ([]RankedEntry, error) {
	q := url.Values{"page": {strconv.Itoa(page)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var ws []wireRanked
	if err := p.get(ctx, "/top", q, &ws); err != nil {
		return nil, err
	}
	out := make([]RankedEntry, 0, len(ws))
	for _, w := range ws {
		out = append(out, RankedEntry{Rank: w.Rank, Entry: p.entry(w.Entry)})
	}
	return out, nil
}

func (p *restProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Debug("provider health check non-OK", "provider", p.name, "status", resp.StatusCode)
		return fmt.Errorf("%s health: HTTP %d", p.name, resp.StatusCode)
	}
	return nil
}
