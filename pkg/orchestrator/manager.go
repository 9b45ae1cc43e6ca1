// Package orchestrator fans catalog queries out to ranked provider adapters,
// merges and deduplicates their results, and fails over between providers.
// Every adapter call goes through the reliability wrapper; nothing here
// touches an upstream directly.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"anistream/pkg/logger"
	"anistream/pkg/provider"
	"anistream/pkg/reliability"
)

// ErrInvalidID is returned for lookup IDs without a known provider prefix.
var ErrInvalidID = errors.New("invalid id: expected <provider>-<nativeId>")

// Config tunes the orchestrator caches.
type Config struct {
	CacheSize int           // max cached result sets (default 512)
	CacheTTL  time.Duration // catalog result TTL (default 5m)
	StreamTTL time.Duration // stream bundle TTL; short, upstream tokens expire (default 2m)
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.StreamTTL <= 0 {
		c.StreamTTL = 2 * time.Minute
	}
	return c
}

// SourceManager is the aggregation orchestrator: it owns the ranked provider
// registry view, the response caches, and the provider health snapshot.
type SourceManager struct {
	registry *provider.Registry
	wrapper  *reliability.Wrapper
	results  *expirable.LRU[string, *provider.ResultSet]
	streams  *expirable.LRU[string, *provider.StreamBundle]
	sf       singleflight.Group
}

// New builds a SourceManager over the given registry and reliability wrapper.
func New(registry *provider.Registry, wrapper *reliability.Wrapper, cfg Config) *SourceManager {
	cfg = cfg.withDefaults()
	return &SourceManager{
		registry: registry,
		wrapper:  wrapper,
		results:  expirable.NewLRU[string, *provider.ResultSet](cfg.CacheSize, nil, cfg.CacheTTL),
		streams:  expirable.NewLRU[string, *provider.StreamBundle](cfg.CacheSize, nil, cfg.StreamTTL),
	}
}

func cacheKey(parts ...string) string { return strings.Join(parts, "\x1f") }

// chainOrder returns providers in rank order, with preferred moved to the
// front when it is known and its circuit is not open.
func (m *SourceManager) chainOrder(preferred string) []provider.Registered {
	ranked := m.registry.Ranked()
	if preferred == "" {
		return ranked
	}
	if m.wrapper.Breaker().IsOpen(preferred) {
		logger.Debug("preferred provider skipped, circuit open", "provider", preferred)
		return ranked
	}
	idx := -1
	for i, reg := range ranked {
		if reg.Descriptor.Name == preferred {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return ranked
	}
	out := make([]provider.Registered, 0, len(ranked))
	out = append(out, ranked[idx])
	for i, reg := range ranked {
		if i != idx {
			out = append(out, reg)
		}
	}
	return out
}

// chainDo walks the fallback chain sequentially: one outstanding upstream
// call at a time. A provider that errors, times out, or returns a
// structurally empty result contributes nothing and the next provider is
// tried; the error surfaces only when the whole chain is exhausted.
func chainDo[T any](ctx context.Context, m *SourceManager, operation, preferred string,
	call func(context.Context, provider.Provider) (T, error), isEmpty func(T) bool) (T, error) {

	var zero T
	var tried []string
	var lastErr error
	for _, reg := range m.chainOrder(preferred) {
		p := reg.Provider
		tried = append(tried, p.Name())
		v, err := reliability.Do(ctx, m.wrapper, p.Name(), operation, func(c context.Context) (T, error) {
			return call(c, p)
		})
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			lastErr = err
			logger.Debug("falling through to next provider",
				"operation", operation, "provider", p.Name(), "err", err)
			continue
		}
		if isEmpty != nil && isEmpty(v) {
			lastErr = provider.ErrNotFound
			continue
		}
		return v, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no providers registered")
	}
	return zero, &ExhaustedError{Operation: operation, Tried: tried, Last: lastErr}
}

func emptyResultSet(page int) *provider.ResultSet {
	return &provider.ResultSet{Entries: []provider.Entry{}, CurrentPage: page}
}

// degradeList converts a fully exhausted chain into an explicit empty result;
// list operations never surface provider errors to the caller.
func degradeList(rs *provider.ResultSet, page int, err error) (*provider.ResultSet, error) {
	if err == nil {
		return rs, nil
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		logger.Warn("list operation degraded to empty result",
			"operation", ex.Operation, "tried", strings.Join(ex.Tried, ","), "err", ex.Last)
		return emptyResultSet(page), nil
	}
	return nil, err
}

// Search runs the fallback chain for a text query, stopping at the first
// provider that returns a non-empty page. Results are cached briefly and
// concurrent identical queries are collapsed.
func (m *SourceManager) Search(ctx context.Context, query string, page int, preferred string) (*provider.ResultSet, error) {
	if page < 1 {
		page = 1
	}
	key := cacheKey("search", query, strconv.Itoa(page), preferred)
	if rs, ok := m.results.Get(key); ok {
		return rs, nil
	}
	v, err, _ := m.sf.Do(key, func() (any, error) {
		rs, err := chainDo(ctx, m, "search", preferred, func(c context.Context, p provider.Provider) (*provider.ResultSet, error) {
			return p.Search(c, query, page, nil)
		}, (*provider.ResultSet).Empty)
		rs, err = degradeList(rs, page, err)
		if err != nil {
			return nil, err
		}
		if !rs.Empty() {
			m.results.Add(key, rs)
		}
		return rs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*provider.ResultSet), nil
}

// SearchAll queries every provider concurrently (fan-out, not fallback) and
// merges whatever resolves in time. Partial failure is tolerated; the call
// fails only when every provider fails.
func (m *SourceManager) SearchAll(ctx context.Context, query string, page int) (*provider.ResultSet, error) {
	if page < 1 {
		page = 1
	}
	ranked := m.registry.Ranked()
	if len(ranked) == 0 {
		return emptyResultSet(page), nil
	}

	results := make([]*provider.ResultSet, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	for i, reg := range ranked {
		g.Go(func() error {
			p := reg.Provider
			rs, err := reliability.Do(gctx, m.wrapper, p.Name(), "searchAll", func(c context.Context) (*provider.ResultSet, error) {
				return p.Search(c, query, page, nil)
			})
			if err != nil {
				// A failing provider contributes nothing; never abort the group.
				logger.Debug("fan-out provider failed", "provider", p.Name(), "err", err)
				return nil
			}
			results[i] = rs
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := &provider.ResultSet{Entries: []provider.Entry{}, CurrentPage: page}
	var all []provider.Entry
	succeeded := 0
	tried := make([]string, 0, len(ranked))
	for i, reg := range ranked {
		tried = append(tried, reg.Descriptor.Name)
		rs := results[i]
		if rs == nil {
			continue
		}
		succeeded++
		all = append(all, rs.Entries...)
		if rs.TotalPages > merged.TotalPages {
			merged.TotalPages = rs.TotalPages
		}
		merged.TotalResults += rs.TotalResults
		merged.HasNextPage = merged.HasNextPage || rs.HasNextPage
	}
	if succeeded == 0 {
		return nil, &ExhaustedError{Operation: "searchAll", Tried: tried, Last: errors.New("every provider failed")}
	}
	merged.Entries = Dedup(all, m.registry.Rank)
	return merged, nil
}

// Browse runs the fallback chain with catalog filters. Filters are applied
// provider-side where supported and re-validated and re-sorted locally so the
// answer is consistent regardless of which provider served it.
func (m *SourceManager) Browse(ctx context.Context, filters provider.BrowseFilters) (*provider.ResultSet, error) {
	page := filters.Page
	if page < 1 {
		page = 1
		filters.Page = 1
	}
	rs, err := chainDo(ctx, m, "browse", "", func(c context.Context, p provider.Provider) (*provider.ResultSet, error) {
		return p.Search(c, filters.Query, page, &filters)
	}, (*provider.ResultSet).Empty)
	rs, err = degradeList(rs, page, err)
	if err != nil {
		return nil, err
	}
	return applyFiltersLocally(rs, filters), nil
}

// resolve maps a prefixed public ID to its provider and native ID.
func (m *SourceManager) resolve(id string) (provider.Provider, string, error) {
	name, nativeID, ok := provider.SplitID(id)
	if !ok {
		return nil, "", ErrInvalidID
	}
	p, ok := m.registry.Lookup(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown provider %q", ErrInvalidID, name)
	}
	return p, nativeID, nil
}

// GetAnime resolves the provider from the id prefix and calls it directly;
// there is no fallback chain, the id is provider-specific.
func (m *SourceManager) GetAnime(ctx context.Context, id string) (*provider.Entry, error) {
	p, nativeID, err := m.resolve(id)
	if err != nil {
		return nil, err
	}
	return reliability.Do(ctx, m.wrapper, p.Name(), "getAnime", func(c context.Context) (*provider.Entry, error) {
		return p.GetByID(c, nativeID)
	})
}

// GetEpisodes lists the episodes of a provider-prefixed title id.
func (m *SourceManager) GetEpisodes(ctx context.Context, id string) ([]provider.Episode, error) {
	p, nativeID, err := m.resolve(id)
	if err != nil {
		return nil, err
	}
	return reliability.Do(ctx, m.wrapper, p.Name(), "getEpisodes", func(c context.Context) ([]provider.Episode, error) {
		return p.ListEpisodes(c, nativeID)
	})
}

// GetEpisodeServers lists the upstream hosts serving an episode.
func (m *SourceManager) GetEpisodeServers(ctx context.Context, id string) ([]provider.EpisodeServer, error) {
	p, nativeID, err := m.resolve(id)
	if err != nil {
		return nil, err
	}
	return reliability.Do(ctx, m.wrapper, p.Name(), "getEpisodeServers", func(c context.Context) ([]provider.EpisodeServer, error) {
		return p.ListServers(c, nativeID)
	})
}

// GetStreamingLinks resolves an episode to playable streams. Bundles are
// cached for minutes, not hours: upstream tokens expire quickly.
func (m *SourceManager) GetStreamingLinks(ctx context.Context, id, server, category string) (*provider.StreamBundle, error) {
	p, nativeID, err := m.resolve(id)
	if err != nil {
		return nil, err
	}
	key := cacheKey("streams", id, server, category)
	if b, ok := m.streams.Get(key); ok {
		return b, nil
	}
	b, err := reliability.Do(ctx, m.wrapper, p.Name(), "getStreamingLinks", func(c context.Context) (*provider.StreamBundle, error) {
		return p.GetStreamingLinks(c, nativeID, server, category)
	})
	if err != nil {
		return nil, err
	}
	m.streams.Add(key, b)
	return b, nil
}

// GetTrending returns the trending chart, fallback-chained like Search.
func (m *SourceManager) GetTrending(ctx context.Context, page int, preferred string) ([]provider.Entry, error) {
	return m.listChain(ctx, "trending", page, preferred, func(c context.Context, p provider.Provider, pg int) ([]provider.Entry, error) {
		return p.ListTrending(c, pg)
	})
}

// GetLatest returns recently updated titles, fallback-chained like Search.
func (m *SourceManager) GetLatest(ctx context.Context, page int, preferred string) ([]provider.Entry, error) {
	return m.listChain(ctx, "latest", page, preferred, func(c context.Context, p provider.Provider, pg int) ([]provider.Entry, error) {
		return p.ListLatest(c, pg)
	})
}

func (m *SourceManager) listChain(ctx context.Context, operation string, page int, preferred string,
	call func(context.Context, provider.Provider, int) ([]provider.Entry, error)) ([]provider.Entry, error) {

	if page < 1 {
		page = 1
	}
	entries, err := chainDo(ctx, m, operation, preferred, func(c context.Context, p provider.Provider) ([]provider.Entry, error) {
		return call(c, p, page)
	}, func(es []provider.Entry) bool { return len(es) == 0 })
	if err != nil {
		var ex *ExhaustedError
		if errors.As(err, &ex) {
			logger.Warn("list operation degraded to empty result", "operation", operation, "err", ex.Last)
			return []provider.Entry{}, nil
		}
		return nil, err
	}
	return entries, nil
}

// GetTopRated returns the top-rated chart, fallback-chained; limit is
// enforced locally in case a provider ignores it.
func (m *SourceManager) GetTopRated(ctx context.Context, page, limit int, preferred string) ([]provider.RankedEntry, error) {
	if page < 1 {
		page = 1
	}
	ranked, err := chainDo(ctx, m, "topRated", preferred, func(c context.Context, p provider.Provider) ([]provider.RankedEntry, error) {
		return p.ListTopRated(c, page, limit)
	}, func(es []provider.RankedEntry) bool { return len(es) == 0 })
	if err != nil {
		var ex *ExhaustedError
		if errors.As(err, &ex) {
			logger.Warn("list operation degraded to empty result", "operation", "topRated", "err", ex.Last)
			return []provider.RankedEntry{}, nil
		}
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SetPreferred promotes name to rank 1. Returns false for unknown names.
func (m *SourceManager) SetPreferred(name string) bool {
	ok := m.registry.SetPreferred(name)
	if ok {
		logger.Info("preferred provider updated", "provider", name)
	}
	return ok
}

// ProviderHealth is one provider's breaker snapshot plus registry identity.
type ProviderHealth struct {
	Name                string    `json:"name"`
	Rank                int       `json:"rank"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailure         time.Time `json:"lastFailure,omitzero"`
	LastAttempt         time.Time `json:"lastAttempt,omitzero"`
	LastLatencyMs       int64     `json:"lastLatencyMs"`
}

// HealthStatus snapshots every registered provider's circuit record,
// independent of whether a call is in flight. Providers never called yet
// report a closed circuit with zero counters.
func (m *SourceManager) HealthStatus() []ProviderHealth {
	snaps := make(map[string]reliability.RecordSnapshot)
	for _, s := range m.wrapper.Breaker().Snapshot() {
		snaps[s.Provider] = s
	}
	ranked := m.registry.Ranked()
	out := make([]ProviderHealth, 0, len(ranked))
	for _, reg := range ranked {
		h := ProviderHealth{
			Name:  reg.Descriptor.Name,
			Rank:  reg.Descriptor.Rank,
			State: reliability.Closed.String(),
		}
		if s, ok := snaps[reg.Descriptor.Name]; ok {
			h.State = s.State
			h.ConsecutiveFailures = s.ConsecutiveFailures
			h.LastFailure = s.LastFailure
			h.LastAttempt = s.LastAttempt
			h.LastLatencyMs = s.LastLatencyMs
		}
		out = append(out, h)
	}
	return out
}
