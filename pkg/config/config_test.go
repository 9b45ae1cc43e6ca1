package config

import (
	"path/filepath"
	"testing"
)

func TestSortProvidersRanksExplicitFirst(t *testing.T) {
	c := &Config{Providers: []ProviderConfig{
		{Name: "c"},
		{Name: "a", Rank: 2},
		{Name: "b", Rank: 1},
	}}
	c.sortProviders()

	want := []string{"b", "a", "c"}
	for i, name := range want {
		if c.Providers[i].Name != name {
			t.Fatalf("order[%d] = %q, want %q", i, c.Providers[i].Name, name)
		}
		if c.Providers[i].Rank != i+1 {
			t.Errorf("rank of %q = %d, want %d", name, c.Providers[i].Rank, i+1)
		}
	}
}

func TestMergeEnvProviders(t *testing.T) {
	t.Setenv("PROVIDER_ZORO_URL", "https://adapter.example/zoro")
	t.Setenv("PROVIDER_ZORO_API_KEY", "secret")
	t.Setenv("PROVIDER_ZORO_RANK", "1")

	c := &Config{Providers: []ProviderConfig{{Name: "zoro", URL: "https://old.example"}}}
	c.mergeEnvProviders()

	if len(c.Providers) != 1 {
		t.Fatalf("env provider should replace the file one, got %d entries", len(c.Providers))
	}
	p := c.Providers[0]
	if p.URL != "https://adapter.example/zoro" || p.APIKey != "secret" || p.Rank != 1 {
		t.Errorf("merged provider = %+v", p)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ANISTREAM_ADDR", ":9999")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "8")
	t.Setenv("PROVIDER_TIMEOUT_MS", "2500")
	t.Setenv("PROXY_TIMEOUT_SECONDS", "45")

	c := &Config{ListenAddr: ":7100", BreakerFailureThreshold: 5, LogLevel: "INFO", ProviderTimeoutMS: 15000, ProxyTimeoutSeconds: 30}
	c.applyEnvOverrides()

	if c.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", c.ListenAddr)
	}
	if c.BreakerFailureThreshold != 8 {
		t.Errorf("BreakerFailureThreshold = %d", c.BreakerFailureThreshold)
	}
	if c.ProviderTimeoutMS != 2500 {
		t.Errorf("ProviderTimeoutMS = %d, want 2500", c.ProviderTimeoutMS)
	}
	if c.ProxyTimeoutSeconds != 45 {
		t.Errorf("ProxyTimeoutSeconds = %d, want 45", c.ProxyTimeoutSeconds)
	}
	if c.LogLevel != "INFO" {
		t.Errorf("unset env var must not clobber LogLevel, got %q", c.LogLevel)
	}
}

func TestApplyEnvOverridesRejectsNegativeDurations(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT_MS", "-50")
	t.Setenv("CACHE_TTL_SECONDS", "-1")

	c := &Config{ProviderTimeoutMS: 15000, CacheTTLSeconds: 300}
	c.applyEnvOverrides()

	if c.ProviderTimeoutMS != 15000 {
		t.Errorf("ProviderTimeoutMS = %d, negative override must be ignored", c.ProviderTimeoutMS)
	}
	if c.CacheTTLSeconds != 300 {
		t.Errorf("CacheTTLSeconds = %d, negative override must be ignored", c.CacheTTLSeconds)
	}
}

func TestSaveAndLoadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	in := &Config{ListenAddr: ":7100", Providers: []ProviderConfig{{Name: "zoro", URL: "https://a.example", Rank: 1}}}
	if err := in.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	out := &Config{}
	if err := out.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if out.ListenAddr != ":7100" || len(out.Providers) != 1 || out.Providers[0].Name != "zoro" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
