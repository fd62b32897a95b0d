package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
)

type scrapeRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	HTML    string `json:"html"`
	URL     string `json:"url"`
}

// handleScrape proxies one federation page. The URL is validated
// before any network effect: a malformed URL is the caller's fault
// (400), a well-formed URL pointing outside the federation host is a
// policy violation (403).
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.scrapeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.scrapeError(w, http.StatusBadRequest, "missing or invalid url", "")
		return
	}

	if err := s.fetcher.ValidateURL(req.URL); err != nil {
		if errors.Is(err, fetch.ErrDisallowedHost) {
			s.scrapeError(w, http.StatusForbidden, "host not allowed", "")
			return
		}
		s.scrapeError(w, http.StatusBadRequest, "missing or invalid url", "")
		return
	}

	start := time.Now()
	html, err := s.fetcher.FetchPage(r.Context(), req.URL)
	s.metrics.upstreamSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		var upstream *fetch.UpstreamError
		switch {
		case errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound:
			s.scrapeError(w, http.StatusNotFound, "page not found", "")
		default:
			s.scrapeError(w, http.StatusInternalServerError, "upstream fetch failed", "")
		}
		return
	}

	s.metrics.requests.WithLabelValues("scrape", strconv.Itoa(http.StatusOK)).Inc()
	respondJSON(w, http.StatusOK, scrapeResponse{Success: true, HTML: html, URL: req.URL})
}

func (s *Server) scrapeError(w http.ResponseWriter, code int, errMsg, detail string) {
	s.metrics.requests.WithLabelValues("scrape", strconv.Itoa(code)).Inc()
	respondError(w, code, errMsg, detail)
}
