package booking

import (
	"errors"
	"sync"

	"luxe-booking/internal/clock"
	"luxe-booking/internal/models"
)

var (
	ErrNoFurtherSteps       = errors.New("already on the review step")
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
)

// State is the persisted part of a wizard: the current 1-based step and the draft.
type State struct {
	Step  int                 `json:"step"`
	Draft models.BookingDraft `json:"draft"`
}

func NewState() State {
	return State{Step: 1}
}

// Wizard drives one booking attempt through the step table.
// A Wizard is safe for concurrent use; transitions are rejected while a submission is running.
type Wizard struct {
	mu         sync.Mutex
	clock      clock.Clock
	state      State
	submitting bool
}

func NewWizard(c clock.Clock) *Wizard {
	return Restore(c, NewState())
}

// Restore rebuilds a wizard from saved state, clamping the step into range.
func Restore(c clock.Clock, st State) *Wizard {
	if st.Step < 1 {
		st.Step = 1
	}
	if st.Step > TotalSteps() {
		st.Step = TotalSteps()
	}
	return &Wizard{clock: c, state: st}
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Wizard) CurrentStep() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, _ := StepAt(w.state.Step)
	return s
}

// Advance validates the current step's fields against the draft with patch applied.
// The schema is derived from that candidate draft, so a date of birth entered on this
// step decides whether the guardian fields on the same step are required.
// On failure every failing field is reported and the state is left as it was.
func (w *Wizard) Advance(p models.DraftPatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInProgress
	}
	if isReview(w.state.Step) {
		return ErrNoFurtherSteps
	}

	candidate := w.state.Draft.Merge(p)
	now := w.clock.Now()
	step, _ := StepAt(w.state.Step)
	results := DeriveSchema(candidate, now).Validate(candidate, step.Fields, now)
	if err := failures(results); err != nil {
		return err
	}

	w.state.Draft = candidate
	w.state.Step++
	return nil
}

// Retreat keeps whatever was entered, valid or not, and goes back one step.
func (w *Wizard) Retreat(p models.DraftPatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInProgress
	}
	w.state.Draft = w.state.Draft.Merge(p)
	if w.state.Step > 1 {
		w.state.Step--
	}
	return nil
}

func (w *Wizard) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInProgress
	}
	w.state = NewState()
	return nil
}

// Review validates every field of the draft. It backs the review step and the submitter.
func (w *Wizard) Review() []FieldResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	return DeriveSchema(w.state.Draft, now).Validate(w.state.Draft, AllFields, now)
}

// beginSubmit marks the wizard busy and returns a snapshot of the draft to submit.
func (w *Wizard) beginSubmit() (models.BookingDraft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return models.BookingDraft{}, ErrSubmissionInProgress
	}
	w.submitting = true
	return w.state.Draft, nil
}

// endSubmit clears the busy flag. A successful submission also resets the wizard.
func (w *Wizard) endSubmit(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if success {
		w.state = NewState()
	}
}
