// Package wizard implements the student check-in flow: pick a roster entry,
// confirm the last digits of the matriculation number, pass the face check.
package wizard

import (
	"errors"
	"fmt"
	"time"

	"edutrack/internal/attendance"
	"edutrack/internal/model"
)

// State is the wizard step.
type State string

const (
	StateSelect    State = "select"
	StateVerify    State = "verify"
	StateBiometric State = "biometric"
	StateSuccess   State = "success"
)

var (
	ErrNotFound          = errors.New("wizard not found")
	ErrInvalidTransition = errors.New("invalid wizard transition")
	ErrDigitsMismatch    = errors.New("registration number digits do not match")
	ErrVerification      = errors.New("face verification failed")
	ErrTooFar            = errors.New("too far from the class venue")
	ErrSubmitInProgress  = errors.New("submission already in progress")
)

// Messages shown to the student on a failed step.
const (
	DigitsMismatchMessage = "Invalid registration number digits. Please try again."
	VerificationMessage   = "Face verification failed. Please try again."
)

// Wizard is the state of one check-in attempt. Fields beyond State are only
// meaningful in the steps that set them.
type Wizard struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`
	StudentID string `json:"studentId,omitempty"`
	Error     string `json:"error,omitempty"`

	Proximity        attendance.Proximity `json:"proximity"`
	ProximityWarning string               `json:"proximityWarning,omitempty"`

	MatchStartedAt time.Time `json:"matchStartedAt,omitempty"`
	Submitting     bool      `json:"submitting"`

	Record      *model.SessionStudent `json:"record,omitempty"`
	SubmittedAt time.Time             `json:"submittedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New starts a wizard on the select step.
func New(id, sessionID string, now time.Time) *Wizard {
	return &Wizard{ID: id, SessionID: sessionID, State: StateSelect, CreatedAt: now, UpdatedAt: now}
}

// LastDigits returns the last three characters of a matriculation number, or
// the whole string when it is shorter.
func LastDigits(matric string) string {
	if len(matric) <= 3 {
		return matric
	}
	return matric[len(matric)-3:]
}

// Select picks the student and moves to verify.
func (w *Wizard) Select(studentID string) error {
	if w.State != StateSelect {
		return w.invalid("select")
	}
	w.StudentID = studentID
	w.Error = ""
	w.State = StateVerify
	return nil
}

// Verify compares digits with the last three characters of matric. A
// mismatch keeps the wizard on verify with an error message.
func (w *Wizard) Verify(digits, matric string) error {
	if w.State != StateVerify {
		return w.invalid("verify")
	}
	if digits != LastDigits(matric) {
		w.Error = DigitsMismatchMessage
		return ErrDigitsMismatch
	}
	w.Error = ""
	w.MatchStartedAt = time.Time{}
	w.State = StateBiometric
	return nil
}

// Back returns to the previous step.
func (w *Wizard) Back() error {
	switch w.State {
	case StateVerify:
		w.State = StateSelect
		w.StudentID = ""
	case StateBiometric:
		if w.Submitting {
			return ErrSubmitInProgress
		}
		w.State = StateVerify
		w.MatchStartedAt = time.Time{}
	default:
		return w.invalid("back")
	}
	w.Error = ""
	return nil
}

// Locate records the outcome of a proximity check.
func (w *Wizard) Locate(p attendance.Proximity) error {
	if w.State == StateSuccess {
		return w.invalid("location")
	}
	w.Proximity = p
	w.ProximityWarning = ""
	if p.Checked && !p.Within {
		w.ProximityWarning = fmt.Sprintf("You are %.0f m away from the class location.", p.Distance)
	}
	return nil
}

// BeginSubmit guards the submission routine against re-entry.
func (w *Wizard) BeginSubmit() error {
	if w.State != StateBiometric {
		return w.invalid("submit")
	}
	if w.Submitting {
		return ErrSubmitInProgress
	}
	w.Submitting = true
	w.Error = ""
	return nil
}

// FailSubmit leaves the wizard on the biometric step for a retry.
func (w *Wizard) FailSubmit(msg string) {
	w.Submitting = false
	w.MatchStartedAt = time.Time{}
	w.Error = msg
}

// Complete records the stored check-in and finishes the wizard.
func (w *Wizard) Complete(rec model.SessionStudent, at time.Time) {
	w.Submitting = false
	w.Record = &rec
	w.SubmittedAt = at
	w.Error = ""
	w.State = StateSuccess
}

func (w *Wizard) invalid(action string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, w.State)
}
