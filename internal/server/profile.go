package server

import (
	"errors"
	"log"
	"net/http"

	"luxe-booking/internal/database"
	"luxe-booking/internal/models"
	"luxe-booking/internal/suggest"
)

func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerOrError(w, r)
	if !ok {
		return
	}
	p, err := s.db.GetProfile(r.Context(), owner)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		log.Printf("Error retrieving profile: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerOrError(w, r)
	if !ok {
		return
	}
	var upd models.ProfileUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := upd.Validate(s.clock.Now()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	p, err := s.db.UpdateProfile(r.Context(), owner, upd)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		log.Printf("Error updating profile: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile.")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type suggestionResponse struct {
	Preferences models.Preferences `json:"preferences"`
	Saved       bool               `json:"saved"`
	Profile     *models.Profile    `json:"profile,omitempty"`
}

// suggestPreferencesHandler asks the suggester for preferences from the caller's
// trip history. With ?save=true the suggestion is written to the profile.
func (s *Server) suggestPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerOrError(w, r)
	if !ok {
		return
	}
	trips, err := s.db.ListConfirmedBookings(r.Context(), owner)
	if err != nil {
		log.Printf("Error retrieving trips for suggestions: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	summary, err := suggest.Summarize(trips)
	if err != nil {
		log.Printf("Error summarising trips: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	prefs, err := s.suggester.Suggest(r.Context(), owner, summary)
	if err != nil {
		log.Printf("Error getting suggestions for %s: %v", owner, err)
		writeError(w, http.StatusBadGateway, "Could not generate suggestions. Please try again later.")
		return
	}

	resp := suggestionResponse{Preferences: prefs}
	if r.URL.Query().Get("save") == "true" {
		p, err := s.db.UpdateProfile(r.Context(), owner, prefs.AsUpdate())
		if err != nil {
			log.Printf("Error saving suggested preferences for %s: %v", owner, err)
			writeError(w, http.StatusInternalServerError, "Failed to update profile.")
			return
		}
		resp.Saved = true
		resp.Profile = &p
	}
	writeJSON(w, http.StatusOK, resp)
}
