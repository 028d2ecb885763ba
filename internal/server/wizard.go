package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"luxe-booking/internal/auth"
	"luxe-booking/internal/booking"
	"luxe-booking/internal/models"
	"luxe-booking/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type wizardResponse struct {
	ID               string              `json:"id"`
	Step             int                 `json:"step"`
	StepName         string              `json:"stepName"`
	TotalSteps       int                 `json:"totalSteps"`
	GuardianRequired bool                `json:"guardianRequired"`
	Draft            models.BookingDraft `json:"draft"`
}

func (s *Server) wizardView(sess session.Session) wizardResponse {
	step, _ := booking.StepAt(sess.State.Step)
	return wizardResponse{
		ID:               sess.ID,
		Step:             sess.State.Step,
		StepName:         step.Name,
		TotalSteps:       booking.TotalSteps(),
		GuardianRequired: booking.DeriveSchema(sess.State.Draft, s.clock.Now()).UnderAge,
		Draft:            sess.State.Draft,
	}
}

// loadSession returns the caller's wizard session, writing a 404 for sessions
// that are missing or belong to someone else.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	claims, _ := auth.FromContext(r.Context())
	sess, err := s.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) || (err == nil && sess.OwnerUID != claims.UID()) {
		writeError(w, http.StatusNotFound, "Booking session not found")
		return session.Session{}, false
	}
	if err != nil {
		log.Printf("Error loading wizard session: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return session.Session{}, false
	}
	return sess, true
}

// lockSession checks ownership before claiming the session, then reloads it
// under the lock so the caller works on the latest state.
func (s *Server) lockSession(w http.ResponseWriter, r *http.Request) (session.Session, func(), bool) {
	if _, ok := s.loadSession(w, r); !ok {
		return session.Session{}, nil, false
	}
	unlock, err := s.sessions.Lock(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrLocked) {
		writeError(w, http.StatusConflict, booking.MsgInProgress)
		return session.Session{}, nil, false
	}
	if err != nil {
		log.Printf("Error locking wizard session: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return session.Session{}, nil, false
	}
	sess, ok := s.loadSession(w, r)
	if !ok {
		unlock()
		return session.Session{}, nil, false
	}
	return sess, unlock, true
}

// inflight holds the sessions with a submission running in this process. It has
// no expiry, so it keeps covering a store call that outlives the session lock.
type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{ids: make(map[string]struct{})}
}

func (f *inflight) claim(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.ids[id]; busy {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) busy(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.ids[id]
	return busy
}

func (f *inflight) release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess session.Session, status int) {
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("Error saving wizard session %s: %v", sess.ID, err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, status, s.wizardView(sess))
}

func writeWizardError(w http.ResponseWriter, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		msg := booking.MsgInvalidFields
		if errors.Is(err, booking.ErrGuardianRequired) {
			msg = booking.GuardianRequiredMessage
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msg, Fields: verr.Fields})
	case errors.Is(err, booking.ErrNoFurtherSteps):
		writeError(w, http.StatusConflict, "Your booking is ready to confirm.")
	case errors.Is(err, booking.ErrSubmissionInProgress):
		writeError(w, http.StatusConflict, booking.MsgInProgress)
	default:
		log.Printf("Wizard transition failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (s *Server) startWizardHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	sess, err := s.sessions.Create(r.Context(), claims.UID())
	if err != nil {
		log.Printf("Error creating wizard session: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusCreated, s.wizardView(sess))
}

func (s *Server) getWizardHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.wizardView(sess))
}

func (s *Server) reviewWizardHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	wiz := booking.Restore(s.clock, sess.State)
	writeJSON(w, http.StatusOK, map[string]any{
		"wizard": s.wizardView(sess),
		"fields": wiz.Review(),
	})
}

// transition runs one wizard operation under the session lock and saves the result.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(*booking.Wizard, models.DraftPatch) error) {
	sess, unlock, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()
	if s.submitting.busy(sess.ID) {
		writeError(w, http.StatusConflict, booking.MsgInProgress)
		return
	}

	var patch models.DraftPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	wiz := booking.Restore(s.clock, sess.State)
	if err := op(wiz, patch); err != nil {
		writeWizardError(w, err)
		return
	}
	sess.State = wiz.State()
	sess.SubmissionID = uuid.Nil
	s.saveSession(w, r, sess, http.StatusOK)
}

func (s *Server) advanceWizardHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*booking.Wizard).Advance)
}

func (s *Server) retreatWizardHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*booking.Wizard).Retreat)
}

func (s *Server) resetWizardHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(wiz *booking.Wizard, _ models.DraftPatch) error { return wiz.Reset() })
}

// deleteWizardHandler abandons a booking in progress.
func (s *Server) deleteWizardHandler(w http.ResponseWriter, r *http.Request) {
	sess, unlock, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()
	if s.submitting.busy(sess.ID) {
		writeError(w, http.StatusConflict, booking.MsgInProgress)
		return
	}

	if err := s.sessions.Delete(r.Context(), sess.ID); err != nil {
		log.Printf("Error deleting wizard session %s: %v", sess.ID, err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitResponse struct {
	booking.Outcome
	Fields []booking.FieldResult `json:"fields,omitempty"`
}

func submitStatus(err error) int {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, booking.ErrGuardianRequired),
		errors.Is(err, booking.ErrEmptyDraft):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrSubmissionInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) submitWizardHandler(w http.ResponseWriter, r *http.Request) {
	sess, unlock, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	if sess.State.Step != booking.TotalSteps() {
		writeError(w, http.StatusConflict, "Please complete every step before confirming.")
		return
	}
	owner, ok := s.ownerOrError(w, r)
	if !ok {
		return
	}
	if !s.submitting.claim(sess.ID) {
		writeJSON(w, http.StatusConflict, submitResponse{Outcome: booking.Outcome{Message: booking.MsgInProgress}})
		return
	}
	defer s.submitting.release(sess.ID)

	if sess.SubmissionID == uuid.Nil {
		sess.SubmissionID = uuid.New()
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			log.Printf("Error reserving booking id for session %s: %v", sess.ID, err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), session.SubmitTimeout)
	defer cancel()
	ctx = booking.WithSubmissionID(ctx, sess.SubmissionID)

	wiz := booking.Restore(s.clock, sess.State)
	out, err := s.submitter.Submit(ctx, wiz, owner)
	if err != nil {
		resp := submitResponse{Outcome: out}
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		writeJSON(w, submitStatus(err), resp)
		return
	}

	sess.State = wiz.State()
	sess.SubmissionID = uuid.Nil
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("Error resetting wizard session %s after booking %s: %v", sess.ID, out.Booking.ID, err)
	}
	writeJSON(w, http.StatusCreated, submitResponse{Outcome: out})
}
