// Package session keeps wizard state between HTTP requests and guards each
// wizard against overlapping mutations.
package session

import (
	"context"
	"errors"
	"time"

	"luxe-booking/internal/booking"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("wizard session not found")
	ErrLocked   = errors.New("wizard session is busy")
)

// LockTTL bounds how long a crashed request can hold a session.
const LockTTL = 30 * time.Second

// SubmitTimeout caps a submission so it finishes before its lock can expire.
const SubmitTimeout = LockTTL - 5*time.Second

type Session struct {
	ID       string        `json:"id"`
	OwnerUID string        `json:"ownerUid"`
	State    booking.State `json:"state"`
	// SubmissionID is the booking id reserved by the first submit of the current
	// draft. Retries reuse it so the store can never insert the draft twice.
	SubmissionID uuid.UUID `json:"submissionId"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Store interface {
	Create(ctx context.Context, ownerUID string) (Session, error)
	Load(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
	// Lock claims the session for one request. It returns ErrLocked when another
	// request holds it; the returned func releases the claim.
	Lock(ctx context.Context, id string) (func(), error)
}
