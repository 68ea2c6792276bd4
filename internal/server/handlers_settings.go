package server

import (
	"net/http"
	"strings"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/client"
)

// handleUserProfile handles POST /user/profile.
func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.AccessToken == "" {
		respondError(w, http.StatusBadRequest, "Access token is required")
		return
	}

	profile, err := s.deps.Profiles.Fetch(r.Context(), body.AccessToken)
	if err != nil {
		s.logger.Error("failed to fetch user profile", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch user profile")
		return
	}

	user, err := s.deps.Store.UpsertUser(r.Context(), api.User{
		ID:      profile.ID,
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	})
	if err != nil {
		s.logger.Error("failed to save user", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch user profile")
		return
	}

	respondData(w, struct {
		*client.Profile
		UserID string `json:"userId"`
	}{profile, user.ID}, "")
}

// handleGetEmailFilters handles GET /settings/email-filters.
func (s *Server) handleGetEmailFilters(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	settings, err := s.deps.Store.GetEmailFilters(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to load email filter settings", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load email filter settings")
		return
	}
	if settings == nil {
		settings = &api.EmailFilterSettings{UserID: userID}
	}

	respondData(w, settings, "")
}

// handlePutEmailFilters handles PUT /settings/email-filters.
func (s *Server) handlePutEmailFilters(w http.ResponseWriter, r *http.Request) {
	var body api.EmailFilterSettings
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	body.UserID = strings.TrimSpace(body.UserID)
	if body.UserID == "" {
		body.UserID = userIDFrom(r)
	}
	if body.UserID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	saved, err := s.deps.Store.SaveEmailFilters(r.Context(), &body)
	if err != nil {
		s.logger.Error("failed to save email filter settings", "user_id", body.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to save email filter settings")
		return
	}

	respondData(w, saved, "Email filter settings saved")
}
