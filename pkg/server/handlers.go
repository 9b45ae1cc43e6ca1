package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"anistream/pkg/logger"
	"anistream/pkg/orchestrator"
	"anistream/pkg/provider"
	"anistream/pkg/reliability"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, orchestrator.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, provider.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reliability.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	case errors.Is(err, reliability.ErrTimeout):
		status = http.StatusGatewayTimeout
	default:
		var ex *orchestrator.ExhaustedError
		if errors.As(err, &ex) {
			status = http.StatusBadGateway
		} else {
			status = http.StatusInternalServerError
		}
	}
	if status >= 500 {
		logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}
	rs, err := s.manager.Search(r.Context(), q, queryPage(r), r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleSearchAll(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}
	rs, err := s.manager.SearchAll(r.Context(), q, queryPage(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := provider.BrowseFilters{
		Query:  strings.TrimSpace(q.Get("q")),
		Type:   q.Get("type"),
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Page:   queryPage(r),
	}
	if g := q.Get("genres"); g != "" {
		filters.Genres = strings.Split(g, ",")
	}
	if y, err := strconv.Atoi(q.Get("yearFrom")); err == nil {
		filters.YearFrom = y
	}
	if y, err := strconv.Atoi(q.Get("yearTo")); err == nil {
		filters.YearTo = y
	}

	rs, err := s.manager.Browse(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleGetAnime(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.GetAnime(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleGetEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := s.manager.GetEpisodes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

func (s *Server) handleGetServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.manager.GetEpisodeServers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		category = "sub"
	}
	server := q.Get("server")
	tried := server
	if tried == "" {
		tried = "default"
	}
	bundle, err := s.manager.GetStreamingLinks(r.Context(), r.PathValue("id"), server, category)
	if errors.Is(err, provider.ErrNotFound) {
		// Playable sources are per-server; tell the player which one came up
		// empty so it can retry against another.
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":        "no playable sources",
			"triedServers": []string{tried},
			"hint":         "retry with a different server or category",
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	entries, err := s.manager.GetTrending(r.Context(), queryPage(r), r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	entries, err := s.manager.GetLatest(r.Context(), queryPage(r), r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTopRated(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 10
	}
	entries, err := s.manager.GetTopRated(r.Context(), queryPage(r), limit, r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSetPreferred(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"provider\": \"<name>\"}"})
		return
	}
	if !s.manager.SetPreferred(req.Provider) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown provider " + req.Provider})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preferred": req.Provider})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": s.manager.HealthStatus(),
	})
}
