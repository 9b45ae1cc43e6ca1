// Package provider defines the capability interface every upstream anime
// source implements, plus the shared catalog types exchanged across the app.
// Concrete adapters are registered by name and rank; the orchestrator depends
// only on the Provider interface, never on adapter types.
package provider

import "context"

// Capability flags for one provider. A provider that cannot serve an
// operation returns ErrUnsupported from it and clears the matching flag.
type Capability uint16

const (
	CanSearch Capability = 1 << iota
	CanBrowse
	CanLookup
	CanEpisodes
	CanServers
	CanStreams
	CanTrending
	CanLatest
	CanTopRated
)

// AllCapabilities marks a provider that serves every operation.
const AllCapabilities = CanSearch | CanBrowse | CanLookup | CanEpisodes |
	CanServers | CanStreams | CanTrending | CanLatest | CanTopRated

// Has reports whether c includes want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Descriptor is the immutable identity of a registered provider. Rank is the
// position in the ranked list at registration time; the live order is owned
// by the Registry and mutated only through SetPreferred.
type Descriptor struct {
	Name         string     `json:"name"`
	Rank         int        `json:"rank"`
	Capabilities Capability `json:"capabilities"`
}

// Provider is the fixed capability interface implemented by each upstream
// adapter. Every method honors ctx cancellation and deadline; none may block
// indefinitely. IDs passed to lookup methods are native provider IDs (the
// orchestrator strips the provider prefix before calling).
type Provider interface {
	Name() string
	Capabilities() Capability

	Search(ctx context.Context, query string, page int, filters *BrowseFilters) (*ResultSet, error)
	GetByID(ctx context.Context, id string) (*Entry, error)
	ListEpisodes(ctx context.Context, animeID string) ([]Episode, error)
	ListServers(ctx context.Context, episodeID string) ([]EpisodeServer, error)
	GetStreamingLinks(ctx context.Context, episodeID, server, category string) (*StreamBundle, error)
	ListTrending(ctx context.Context, page int) ([]Entry, error)
	ListLatest(ctx context.Context, page int) ([]Entry, error)
	ListTopRated(ctx context.Context, page, limit int) ([]RankedEntry, error)
	HealthCheck(ctx context.Context) error
}
