package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anistream/pkg/config"
	"anistream/pkg/hlsproxy"
	"anistream/pkg/orchestrator"
	"anistream/pkg/provider"
	"anistream/pkg/reliability"
)

type fakeProvider struct {
	name string
}

var _ provider.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string                      { return f.name }
func (f *fakeProvider) Capabilities() provider.Capability { return provider.AllCapabilities }

func (f *fakeProvider) Search(_ context.Context, query string, page int, _ *provider.BrowseFilters) (*provider.ResultSet, error) {
	if query == "nothing" {
		return &provider.ResultSet{CurrentPage: page}, nil
	}
	return &provider.ResultSet{
		Entries: []provider.Entry{
			{ID: f.name + "-100", Title: "One Piece", Type: "TV", Source: f.name},
		},
		CurrentPage: page, TotalPages: 1, TotalResults: 1,
	}, nil
}

func (f *fakeProvider) GetByID(_ context.Context, id string) (*provider.Entry, error) {
	if id == "missing" {
		return nil, provider.ErrNotFound
	}
	return &provider.Entry{ID: provider.MakeID(f.name, id), Title: "One Piece", Source: f.name}, nil
}

func (f *fakeProvider) ListEpisodes(context.Context, string) ([]provider.Episode, error) {
	return []provider.Episode{{ID: provider.MakeID(f.name, "ep1"), Number: 1}}, nil
}

func (f *fakeProvider) ListServers(context.Context, string) ([]provider.EpisodeServer, error) {
	return []provider.EpisodeServer{{Name: "vidcloud", Category: "sub"}}, nil
}

func (f *fakeProvider) GetStreamingLinks(_ context.Context, episodeID, _, _ string) (*provider.StreamBundle, error) {
	if episodeID == "empty" {
		return nil, provider.ErrNotFound
	}
	return &provider.StreamBundle{
		Sources: []provider.VideoSource{{URL: "https://cdn.example/master.m3u8", IsM3U8: true}},
	}, nil
}

func (f *fakeProvider) ListTrending(context.Context, int) ([]provider.Entry, error) {
	return []provider.Entry{{ID: f.name + "-1", Title: "Trending", Source: f.name}}, nil
}

func (f *fakeProvider) ListLatest(context.Context, int) ([]provider.Entry, error) {
	return []provider.Entry{{ID: f.name + "-2", Title: "Latest", Source: f.name}}, nil
}

func (f *fakeProvider) ListTopRated(context.Context, int, int) ([]provider.RankedEntry, error) {
	return []provider.RankedEntry{{Entry: provider.Entry{ID: f.name + "-3", Title: "Top", Source: f.name}, Rank: 1}}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error { return nil }

func testServer(t *testing.T) *Server {
	t.Helper()
	registry := provider.NewRegistry(&fakeProvider{name: "zoro"})
	wrapper := reliability.NewWrapper(reliability.NewBreaker(0, 0), reliability.Options{
		MaxAttempts: 1, Timeout: time.Second, RetryDelay: time.Millisecond,
	})
	manager := orchestrator.New(registry, wrapper, orchestrator.Config{})
	return New(&config.Config{ListenAddr: ":0"}, manager, hlsproxy.New(hlsproxy.Config{}))
}

func doRequest(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	s := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/search?q=one+piece", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rs provider.ResultSet
	if err := json.Unmarshal(rec.Body.Bytes(), &rs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rs.Entries) != 1 || rs.Entries[0].Title != "One Piece" {
		t.Errorf("unexpected result set: %+v", rs)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := testServer(t)
	if rec := doRequest(t, s, http.MethodGet, "/api/search", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetAnimeErrorMapping(t *testing.T) {
	s := testServer(t)

	if rec := doRequest(t, s, http.MethodGet, "/api/anime/zoro-missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing title: status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/anime/badid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/anime/zoro-100", ""); rec.Code != http.StatusOK {
		t.Errorf("valid id: status = %d, want 200", rec.Code)
	}
}

func TestEpisodeFlow(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/anime/zoro-100/episodes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("episodes status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/episodes/zoro-ep1/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("servers status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/episodes/zoro-ep1/sources?server=vidcloud", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sources status = %d", rec.Code)
	}
	var bundle provider.StreamBundle
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if len(bundle.Sources) != 1 || !bundle.Sources[0].IsM3U8 {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestSourcesNotFoundNamesTriedServer(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/episodes/zoro-empty/sources?server=vidcloud", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Error        string   `json:"error"`
		TriedServers []string `json:"triedServers"`
		Hint         string   `json:"hint"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.TriedServers) != 1 || body.TriedServers[0] != "vidcloud" || body.Hint == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestSetPreferredEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/provider/preferred", `{"provider":"zoro"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, s, http.MethodPost, "/api/provider/preferred", `{"provider":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown provider status = %d, want 404", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPost, "/api/provider/preferred", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status    string                        `json:"status"`
		Providers []orchestrator.ProviderHealth `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || len(body.Providers) != 1 || body.Providers[0].Name != "zoro" {
		t.Errorf("health body = %+v", body)
	}
}

func TestStreamProxyMounted(t *testing.T) {
	s := testServer(t)
	if rec := doRequest(t, s, http.MethodOptions, "/stream/proxy", ""); rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/stream/proxy?url=ftp://x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid url status = %d, want 400", rec.Code)
	}
}
