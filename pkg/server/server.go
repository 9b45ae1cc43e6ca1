// Package server exposes the catalog, streaming, and health API over HTTP
// and pushes live health/log events over a websocket.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"anistream/pkg/config"
	"anistream/pkg/hlsproxy"
	"anistream/pkg/logger"
	"anistream/pkg/orchestrator"
)

// Server handles API requests and the stream proxy endpoint.
type Server struct {
	cfg     *config.Config
	manager *orchestrator.SourceManager
	proxy   *hlsproxy.Proxy
	httpSrv *http.Server

	// WebSocket client registry
	clients   map[*wsClient]bool
	clientsMu sync.Mutex
	logCh     chan string
}

// New creates the API server and starts the log broadcaster.
func New(cfg *config.Config, manager *orchestrator.SourceManager, proxy *hlsproxy.Proxy) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		proxy:   proxy,
		clients: make(map[*wsClient]bool),
		logCh:   make(chan string, 100),
	}

	logger.SetBroadcast(s.logCh)
	go s.broadcastLogs()

	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/stream/proxy", s.proxy)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/search/all", s.handleSearchAll)
	mux.HandleFunc("GET /api/browse", s.handleBrowse)
	mux.HandleFunc("GET /api/anime/{id}", s.handleGetAnime)
	mux.HandleFunc("GET /api/anime/{id}/episodes", s.handleGetEpisodes)
	mux.HandleFunc("GET /api/episodes/{id}/servers", s.handleGetServers)
	mux.HandleFunc("GET /api/episodes/{id}/sources", s.handleGetSources)
	mux.HandleFunc("GET /api/trending", s.handleTrending)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	mux.HandleFunc("GET /api/top", s.handleTopRated)
	mux.HandleFunc("POST /api/provider/preferred", s.handleSetPreferred)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleWebSocket)

	return mux
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("HTTP server listening", "addr", s.cfg.ListenAddr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
