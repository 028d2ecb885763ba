package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"luxe-booking/internal/auth"
	"luxe-booking/internal/booking"
	"luxe-booking/internal/database"
	"luxe-booking/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RegisterRoutes sets up the router with all endpoints.
func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.limiter.middleware)
	r.Use(s.issuer.Authenticate)

	r.Get("/health", s.healthHandler)
	r.Get("/vehicles", s.vehiclesHandler)
	r.Get("/wizard/steps", s.stepsHandler)

	r.Post("/auth/signup", s.signupHandler)
	r.Post("/auth/login", s.loginHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/me", s.meHandler)

		// Booking wizard
		r.Post("/wizard", s.startWizardHandler)
		r.Get("/wizard/{id}", s.getWizardHandler)
		r.Delete("/wizard/{id}", s.deleteWizardHandler)
		r.Get("/wizard/{id}/review", s.reviewWizardHandler)
		r.Post("/wizard/{id}/next", s.advanceWizardHandler)
		r.Post("/wizard/{id}/back", s.retreatWizardHandler)
		r.Post("/wizard/{id}/reset", s.resetWizardHandler)
		r.Post("/wizard/{id}/submit", s.submitWizardHandler)

		// Trip history
		r.Get("/trips", s.listTripsHandler)
		r.Get("/trips/{id}", s.getTripHandler)
		r.Get("/trips/{id}/ticket.pdf", s.tripTicketHandler)

		// Profile
		r.Get("/profile", s.getProfileHandler)
		r.Patch("/profile", s.updateProfileHandler)
		r.Post("/profile/suggestions", s.suggestPreferencesHandler)
	})

	return r
}

// healthHandler provides health information.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.db.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, stats)
}

func (s *Server) vehiclesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.VehicleTypes)
}

func (s *Server) stepsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, booking.Steps())
}

type errorResponse struct {
	Error  string                `json:"error"`
	Fields []booking.FieldResult `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// owner maps the caller's identity UID to the internal owner id, creating the
// user row the first time an externally issued identity shows up.
func (s *Server) owner(r *http.Request) (uuid.UUID, error) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return uuid.Nil, booking.ErrUnauthenticated
	}
	id, err := s.db.ResolveOwner(r.Context(), claims.UID())
	if errors.Is(err, database.ErrNotFound) {
		u, err := s.db.EnsureUser(r.Context(), claims.UID(), claims.Email, "")
		if err != nil {
			return uuid.Nil, err
		}
		return u.ID, nil
	}
	return id, err
}

// ownerOrError writes the error response itself when the owner cannot be resolved.
func (s *Server) ownerOrError(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := s.owner(r)
	if errors.Is(err, booking.ErrUnauthenticated) {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, false
	}
	if err != nil {
		log.Printf("Error resolving owner: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return uuid.Nil, false
	}
	return id, true
}
