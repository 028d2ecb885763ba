package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"luxe-booking/internal/database"
	"luxe-booking/internal/models"
	"luxe-booking/internal/ticket"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) listTripsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerOrError(w, r)
	if !ok {
		return
	}
	trips, err := s.db.ListConfirmedBookings(r.Context(), owner)
	if err != nil {
		log.Printf("Error retrieving trips: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

// loadTrip fetches one of the caller's bookings, writing the error response itself.
func (s *Server) loadTrip(w http.ResponseWriter, r *http.Request) (models.ConfirmedBooking, bool) {
	owner, ok := s.ownerOrError(w, r)
	if !ok {
		return models.ConfirmedBooking{}, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid trip id")
		return models.ConfirmedBooking{}, false
	}
	b, err := s.db.GetBooking(r.Context(), owner, id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Trip not found")
		return models.ConfirmedBooking{}, false
	}
	if err != nil {
		log.Printf("Error retrieving trip %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return models.ConfirmedBooking{}, false
	}
	return b, true
}

func (s *Server) getTripHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadTrip(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) tripTicketHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadTrip(w, r)
	if !ok {
		return
	}
	pdf, err := ticket.Render(b)
	if err != nil {
		log.Printf("Error rendering ticket for %s: %v", b.ID, err)
		writeError(w, http.StatusInternalServerError, "Could not generate the e-ticket.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, ticket.Filename(b)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
