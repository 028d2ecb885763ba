package booking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"luxe-booking/internal/clock"
	"luxe-booking/internal/models"

	"github.com/google/uuid"
)

const (
	MsgConfirmed     = "Booking confirmed successfully!"
	MsgFailed        = "Failed to create booking."
	MsgSignIn        = "Please sign in to confirm your booking."
	MsgEmptyDraft    = "Please start your booking from the beginning."
	MsgInvalidFields = "Please correct the highlighted fields."
	MsgInProgress    = "Your booking is already being submitted."
)

var (
	ErrUnauthenticated = errors.New("no authenticated owner")
	ErrEmptyDraft      = errors.New("draft is empty")
)

// BookingCreator persists a confirmed booking for an owner.
type BookingCreator interface {
	CreateBooking(ctx context.Context, draft models.BookingDraft, ownerID uuid.UUID, age int) (models.ConfirmedBooking, error)
}

type submissionIDKey struct{}

// WithSubmissionID asks the store to create the booking under id. A store that
// already holds a booking with that id for the same owner returns it instead.
func WithSubmissionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, submissionIDKey{}, id)
}

func SubmissionID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(submissionIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Notifier is told about every booking that was stored.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b models.ConfirmedBooking) error
}

// Outcome is what the caller shows the user after a submission attempt.
type Outcome struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Booking *models.ConfirmedBooking `json:"booking,omitempty"`
}

type Submitter struct {
	store    BookingCreator
	clock    clock.Clock
	notifier Notifier
}

type SubmitterOption func(*Submitter)

func WithNotifier(n Notifier) SubmitterOption {
	return func(s *Submitter) { s.notifier = n }
}

func NewSubmitter(store BookingCreator, c clock.Clock, opts ...SubmitterOption) *Submitter {
	s := &Submitter{store: store, clock: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the wizard's draft and hands it to the store.
// On success the wizard is reset; on any failure the wizard keeps its step and draft.
// Only one Submit may run per wizard at a time.
func (s *Submitter) Submit(ctx context.Context, w *Wizard, ownerID uuid.UUID) (Outcome, error) {
	draft, err := w.beginSubmit()
	if err != nil {
		return Outcome{Message: MsgInProgress}, err
	}
	success := false
	defer func() { w.endSubmit(success) }()

	if ownerID == uuid.Nil {
		return Outcome{Message: MsgSignIn}, ErrUnauthenticated
	}
	if draft.IsEmpty() {
		return Outcome{Message: MsgEmptyDraft}, ErrEmptyDraft
	}

	now := s.clock.Now()
	age, ageErr := AgeFromString(draft.DateOfBirth, now)
	if ageErr == nil && !GuardianSatisfied(age, draft.GuardianName, draft.GuardianContact) {
		return Outcome{Message: GuardianRequiredMessage}, ErrGuardianRequired
	}
	if err := failures(DeriveSchema(draft, now).Validate(draft, AllFields, now)); err != nil {
		return Outcome{Message: MsgInvalidFields}, err
	}

	b, err := s.create(ctx, draft, ownerID, age)
	if err != nil {
		log.Printf("Error creating booking for owner %s: %v", ownerID, err)
		msg := MsgFailed
		if errors.Is(err, ErrGuardianRequired) {
			msg = GuardianRequiredMessage
		}
		return Outcome{Message: msg}, fmt.Errorf("create booking: %w", err)
	}
	success = true

	if s.notifier != nil {
		if err := s.notifier.BookingConfirmed(ctx, b); err != nil {
			log.Printf("Error publishing confirmation for booking %s: %v", b.ID, err)
		}
	}
	return Outcome{Success: true, Message: MsgConfirmed, Booking: &b}, nil
}

// create calls the store and turns a panic into an ordinary error.
func (s *Submitter) create(ctx context.Context, d models.BookingDraft, ownerID uuid.UUID, age int) (b models.ConfirmedBooking, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("booking store panicked: %v", r)
		}
	}()
	return s.store.CreateBooking(ctx, d, ownerID, age)
}
