package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/token"
)

const tokenHeader = "X-Sync-Token"

type syncPushRequest struct {
	ClubSlug string `json:"clubSlug" validate:"required,clubslug"`
	// Events is a pointer so a missing or non-array field is
	// distinguishable from an empty list.
	Events         *[]*model.Event       `json:"events" validate:"required"`
	Validations    model.ValidationState `json:"validations,omitempty"`
	CurrentEventID string                `json:"currentEventId,omitempty"`
}

type syncPushResponse struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
}

type syncPullResponse struct {
	Success bool               `json:"success"`
	Data    *model.StorageData `json:"data"`
}

// handleSyncPush stores a club's full document under its slug.
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	if s.secret == "" {
		s.syncError(w, http.StatusServiceUnavailable, "sync is not configured", "")
		return
	}

	var req syncPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.syncError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.syncError(w, http.StatusBadRequest, "invalid club slug or missing events", "")
		return
	}
	if !s.authorized(r, req.ClubSlug) {
		s.syncError(w, http.StatusUnauthorized, "invalid sync token", "")
		return
	}

	data := model.NewStorageData()
	data.Events = *req.Events
	if req.Validations != nil {
		data.Validations = req.Validations
	}
	data.CurrentEventID = req.CurrentEventID

	if err := s.sync.Put(req.ClubSlug, data); err != nil {
		s.syncError(w, http.StatusInternalServerError, "failed to store sync data", "")
		return
	}

	s.metrics.requests.WithLabelValues("sync_push", strconv.Itoa(http.StatusOK)).Inc()
	respondJSON(w, http.StatusOK, syncPushResponse{Success: true, Synced: len(data.Events)})
}

// handleSyncPull returns a club's stored document. An unknown slug
// with a valid token reads as an empty document.
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	if s.secret == "" {
		s.syncError(w, http.StatusServiceUnavailable, "sync is not configured", "")
		return
	}

	slug := r.URL.Query().Get("clubSlug")
	if err := s.validate.Var(slug, "required,clubslug"); err != nil {
		s.syncError(w, http.StatusBadRequest, "invalid club slug", "")
		return
	}
	if !s.authorized(r, slug) {
		s.syncError(w, http.StatusUnauthorized, "invalid sync token", "")
		return
	}

	data, err := s.sync.Get(slug)
	if err != nil {
		s.syncError(w, http.StatusInternalServerError, "failed to read sync data", "")
		return
	}

	s.metrics.requests.WithLabelValues("sync_pull", strconv.Itoa(http.StatusOK)).Inc()
	respondJSON(w, http.StatusOK, syncPullResponse{Success: true, Data: data})
}

func (s *Server) authorized(r *http.Request, slug string) bool {
	return token.Verify(slug, s.secret, r.Header.Get(tokenHeader))
}

func (s *Server) syncError(w http.ResponseWriter, code int, errMsg, detail string) {
	s.metrics.requests.WithLabelValues("sync", strconv.Itoa(code)).Inc()
	respondError(w, code, errMsg, detail)
}
