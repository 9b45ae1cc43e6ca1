package hlsproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"anistream/pkg/logger"
)

// ErrInvalidURL rejects proxy targets that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url: must be absolute http(s)")

// UpstreamHTTPError reports a 4xx/5xx answer from the CDN. 4xx passes through
// with its original status; everything else surfaces as 502.
type UpstreamHTTPError struct {
	Status int    `json:"status"`
	Host   string `json:"host"`
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream %s responded %d", e.Host, e.Status)
}

const (
	defaultUpstreamTimeout = 30 * time.Second
	manifestCacheControl   = "public, max-age=5"
	segmentCacheControl    = "public, max-age=31536000, immutable"
)

// Config tunes the proxy handler.
type Config struct {
	// Route is the public path of this handler; rewritten manifest URIs
	// point at it.
	Route string
	// UpstreamTimeout bounds one upstream fetch end to end.
	UpstreamTimeout time.Duration
}

// Proxy is the /stream/proxy handler: it validates the target, fetches it
// with a CDN header profile, rewrites manifests, and streams segments.
type Proxy struct {
	route  string
	client *http.Client
}

var _ http.Handler = (*Proxy)(nil)

// New builds the proxy handler.
func New(cfg Config) *Proxy {
	route := cfg.Route
	if route == "" {
		route = "/stream/proxy"
	}
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &Proxy{
		route: route,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet, http.MethodHead:
		p.handleFetch(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
}

func writeJSONError(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseTarget validates the raw url query parameter.
func parseTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

func (p *Proxy) handleFetch(w http.ResponseWriter, r *http.Request) {
	target, err := parseTarget(r.URL.Query().Get("url"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	class := classify(target)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, map[string]string{"error": ErrInvalidURL.Error()})
		return
	}
	profile := profileFor(target.Hostname())
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", profile.Referer)
	req.Header.Set("Origin", profile.Origin)
	if class == classSegment {
		// Players seek with range requests; upstream must see them.
		if rng := r.Header.Get("Range"); rng != "" {
			req.Header.Set("Range", rng)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Warn("upstream fetch failed", "host", target.Hostname(), "err", err)
		writeJSONError(w, http.StatusBadGateway, map[string]string{
			"error": "upstream fetch failed", "host": target.Hostname(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		status := resp.StatusCode
		if status >= 500 {
			status = http.StatusBadGateway
		}
		logger.Warn("upstream rejected proxied request",
			"host", target.Hostname(), "status", resp.StatusCode)
		writeJSONError(w, status, &UpstreamHTTPError{Status: resp.StatusCode, Host: target.Hostname()})
		return
	}

	switch class {
	case classManifest:
		p.serveManifest(w, resp, target)
	default:
		p.servePassthrough(w, resp, target, class)
	}
}

func (p *Proxy) serveManifest(w http.ResponseWriter, resp *http.Response, target *url.URL) {
	// CDNs occasionally label playlists with a legacy charset; decode to
	// UTF-8 before the line rewrite.
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	body, err := io.ReadAll(io.LimitReader(reader, 8<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, map[string]string{
			"error": "reading upstream manifest failed", "host": target.Hostname(),
		})
		return
	}
	rewritten := RewriteManifest(string(body), target, p.route)
	h := w.Header()
	h.Set("Content-Type", "application/vnd.apple.mpegurl")
	h.Set("Cache-Control", manifestCacheControl)
	h.Set("Content-Length", fmt.Sprint(len(rewritten)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, rewritten)
}

func (p *Proxy) servePassthrough(w http.ResponseWriter, resp *http.Response, target *url.URL, class contentClass) {
	h := w.Header()
	h.Set("Content-Type", passthroughContentType(resp, target))
	if class == classSegment {
		h.Set("Cache-Control", segmentCacheControl)
	} else {
		h.Set("Cache-Control", manifestCacheControl)
	}
	for _, name := range []string{"Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// The player aborted or upstream died mid-segment; nothing to send.
		logger.Debug("segment copy interrupted", "host", target.Hostname(), "err", err)
	}
}

// passthroughContentType prefers the upstream header and falls back to the
// extension when the CDN omits it.
func passthroughContentType(resp *http.Response, target *url.URL) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	path := strings.ToLower(target.Path)
	switch {
	case strings.HasSuffix(path, ".ts"):
		return "video/mp2t"
	case strings.HasSuffix(path, ".m4s"):
		return "video/iso.segment"
	case strings.HasSuffix(path, ".vtt"):
		return "text/vtt"
	default:
		return "application/octet-stream"
	}
}
